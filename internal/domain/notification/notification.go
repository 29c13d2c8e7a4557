package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/pkg/domain"
)

// Notification is a durable, per-recipient record of a lifecycle event.
type Notification struct {
	id        uuid.UUID
	userID    uuid.UUID
	eventType string
	message   string
	read      bool
	createdAt time.Time
}

// NewNotification creates an unread notification for the recipient.
func NewNotification(userID uuid.UUID, eventType, message string, now time.Time) (*Notification, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("recipient ID is required")
	}
	if message == "" {
		return nil, domain.NewValidationError("notification message is required")
	}
	return &Notification{
		id:        uuid.New(),
		userID:    userID,
		eventType: eventType,
		message:   message,
		createdAt: now.UTC(),
	}, nil
}

// ReconstructNotification rebuilds a Notification from persistence.
func ReconstructNotification(id, userID uuid.UUID, eventType, message string, read bool, createdAt time.Time) *Notification {
	return &Notification{
		id:        id,
		userID:    userID,
		eventType: eventType,
		message:   message,
		read:      read,
		createdAt: createdAt,
	}
}

// ID returns the notification ID.
func (n *Notification) ID() uuid.UUID {
	return n.id
}

// UserID returns the recipient.
func (n *Notification) UserID() uuid.UUID {
	return n.userID
}

// EventType returns the channel event the notification was created for.
func (n *Notification) EventType() string {
	return n.eventType
}

// Message returns the notification text.
func (n *Notification) Message() string {
	return n.message
}

// Read reports whether the recipient has read the notification.
func (n *Notification) Read() bool {
	return n.read
}

// CreatedAt returns the creation timestamp.
func (n *Notification) CreatedAt() time.Time {
	return n.createdAt
}

// IsOwnedBy reports whether the notification belongs to the user.
func (n *Notification) IsOwnedBy(userID uuid.UUID) bool {
	return n.userID == userID
}

// MarkRead flips the notification to read. It is idempotent.
func (n *Notification) MarkRead() {
	n.read = true
}
