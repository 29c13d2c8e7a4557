package booking

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter scopes a booking listing. Zero-valued fields are ignored.
type ListFilter struct {
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
	Status      BookingStatus
}

// BookingRepository defines the persistence contract for booking aggregates.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByIDForUpdate retrieves a booking and locks it until the surrounding
	// transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindConflictCandidates returns every booking that occupies the slot for
	// the requester or the provider, plus pending bookings between the pair.
	FindConflictCandidates(ctx context.Context, requesterID, providerID uuid.UUID, slot Slot) ([]*Booking, error)

	// List retrieves bookings matching the filter with pagination, newest first.
	List(ctx context.Context, filter ListFilter, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking. Unique-index violations are reported as
	// the matching conflict error.
	Save(ctx context.Context, booking *Booking) error

	// Update persists changes to an existing booking with optimistic locking.
	Update(ctx context.Context, booking *Booking) error
}
