package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
)

const maxNotesLength = 1000

// Actor is the authenticated caller driving a booking transition.
type Actor struct {
	ID   uuid.UUID
	Role auth.Role
}

// Booking is the aggregate root for the booking domain.
type Booking struct {
	id          uuid.UUID
	requesterID uuid.UUID
	providerID  uuid.UUID
	serviceID   uuid.UUID
	slot        Slot
	status      BookingStatus
	notes       string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewBooking creates a new Booking aggregate with status=pending.
func NewBooking(requesterID, providerID, serviceID uuid.UUID, slot Slot, notes string, now time.Time) (*Booking, error) {
	if requesterID == uuid.Nil {
		return nil, domain.NewValidationError("requester ID is required")
	}
	if providerID == uuid.Nil {
		return nil, domain.NewValidationError("provider ID is required")
	}
	if serviceID == uuid.Nil {
		return nil, domain.NewValidationError("service ID is required")
	}
	if requesterID == providerID {
		return nil, domain.NewValidationError("requester and provider must differ")
	}
	if slot.Date == "" || slot.Time == "" {
		return nil, domain.NewValidationError("date and time are required")
	}
	if len(notes) > maxNotesLength {
		return nil, domain.NewValidationError(fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}

	now = now.UTC()
	return &Booking{
		id:          uuid.New(),
		requesterID: requesterID,
		providerID:  providerID,
		serviceID:   serviceID,
		slot:        slot,
		status:      StatusPending,
		notes:       notes,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id, requesterID, providerID, serviceID uuid.UUID,
	slot Slot,
	status BookingStatus,
	notes string,
	version int64,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:          id,
		requesterID: requesterID,
		providerID:  providerID,
		serviceID:   serviceID,
		slot:        slot,
		status:      status,
		notes:       notes,
		version:     version,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// RequesterID returns the ID of the requester who created the booking.
func (b *Booking) RequesterID() uuid.UUID { return b.requesterID }

// ProviderID returns the ID of the booked professional.
func (b *Booking) ProviderID() uuid.UUID { return b.providerID }

// ServiceID returns the ID of the booked service.
func (b *Booking) ServiceID() uuid.UUID { return b.serviceID }

// Slot returns the scheduled date and time.
func (b *Booking) Slot() Slot { return b.slot }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// Notes returns the free-text notes.
func (b *Booking) Notes() string { return b.notes }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

// IsParticipant reports whether the user is the requester or the provider.
func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return b.requesterID == userID || b.providerID == userID
}

// CanBeViewedBy reports whether the actor may read this booking.
func (b *Booking) CanBeViewedBy(actor Actor) bool {
	return actor.Role == auth.RoleAdmin || b.IsParticipant(actor.ID)
}

// CancelBy cancels a pending booking on behalf of its requester.
func (b *Booking) CancelBy(actor Actor, now time.Time) error {
	if actor.Role != auth.RoleRequester {
		return domain.NewForbiddenError("only requesters can cancel bookings")
	}
	if actor.ID != b.requesterID {
		return domain.NewForbiddenError("booking does not belong to this requester")
	}
	if b.status != StatusPending {
		return domain.NewInvalidStateError(string(b.status), string(StatusCancelled))
	}
	b.status = StatusCancelled
	b.touch(now)
	return nil
}

// SetStatusBy moves the booking to target on behalf of an admin or the
// booking's provider.
func (b *Booking) SetStatusBy(actor Actor, target BookingStatus, now time.Time) error {
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleProvider:
		if actor.ID != b.providerID {
			return domain.NewForbiddenError("booking is assigned to another provider")
		}
	default:
		return domain.NewForbiddenError("only admins and the assigned provider can change booking status")
	}

	if !target.IsSettable() {
		return domain.NewValidationError(fmt.Sprintf("status must be one of in_progress, completed, cancelled; got %q", target))
	}
	if target == b.status {
		return domain.NewValidationError(fmt.Sprintf("booking is already %s", target))
	}
	if !b.status.CanTransitionTo(target) {
		return domain.NewInvalidStateError(string(b.status), string(target))
	}
	b.status = target
	b.touch(now)
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

func (b *Booking) touch(now time.Time) {
	b.updatedAt = now.UTC()
}
