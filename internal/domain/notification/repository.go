package notification

import (
	"context"

	"github.com/google/uuid"
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Save(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Notification, int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Save(ctx context.Context, m *Message) error
	FindConversation(ctx context.Context, userA, userB uuid.UUID, page, limit int) ([]*Message, int64, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*Message, error)
}
