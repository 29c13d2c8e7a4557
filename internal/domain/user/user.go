package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/internal/domain/penalty"
	"github.com/taskhive/service-booking/pkg/auth"
)

// User is the subset of a marketplace account this service reads and the
// cancellation standing it owns.
type User struct {
	id        uuid.UUID
	name      string
	role      auth.Role
	standing  penalty.State
	createdAt time.Time
	updatedAt time.Time
}

// Reconstruct rebuilds a User from persistence data (no validation).
func Reconstruct(id uuid.UUID, name string, role auth.Role, standing penalty.State, createdAt, updatedAt time.Time) *User {
	return &User{
		id:        id,
		name:      name,
		role:      role,
		standing:  standing,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the user ID.
func (u *User) ID() uuid.UUID {
	return u.id
}

// Name returns the user's display name as stored.
func (u *User) Name() string {
	return u.name
}

// Role returns the user's role.
func (u *User) Role() auth.Role {
	return u.role
}

// Standing returns the cancellation state.
func (u *User) Standing() penalty.State {
	return u.standing
}

// CreatedAt returns the creation timestamp.
func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

// UpdatedAt returns the last update timestamp.
func (u *User) UpdatedAt() time.Time {
	return u.updatedAt
}

// IsRequester reports whether the user books services.
func (u *User) IsRequester() bool {
	return u.role == auth.RoleRequester
}

// IsProvider reports whether the user provides services.
func (u *User) IsProvider() bool {
	return u.role == auth.RoleProvider
}

// DisplayName returns the name, or a short form of the ID when unnamed.
func (u *User) DisplayName() string {
	if u.name != "" {
		return u.name
	}
	return "user " + u.id.String()[:8]
}

// RecordCancellation applies policy to one cancellation and updates the
// standing in place.
func (u *User) RecordCancellation(policy penalty.Policy, at time.Time) penalty.Outcome {
	next, outcome := policy.Apply(u.standing, at)
	u.standing = next
	u.updatedAt = at.UTC()
	return outcome
}

// CancellationEvent is one entry of the append-only cancellation log.
type CancellationEvent struct {
	ID              uuid.UUID
	RequesterID     uuid.UUID
	BookingID       uuid.UUID
	CountAfter      int
	Outcome         penalty.OutcomeKind
	RestrictedUntil *time.Time
	CreatedAt       time.Time
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// LockForUpdate loads the users and row-locks them in ID order until the
	// surrounding transaction ends. Missing IDs yield a not-found error.
	LockForUpdate(ctx context.Context, ids ...uuid.UUID) ([]*User, error)

	// UpdateStanding persists the cancellation counter and restriction.
	UpdateStanding(ctx context.Context, u *User) error

	// AppendCancellationEvent writes one row to the cancellation log.
	AppendCancellationEvent(ctx context.Context, evt CancellationEvent) error
}
