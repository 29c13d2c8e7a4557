// Package notify persists per-recipient notifications and chat messages and
// fans them out to live channels. Records are written first; pushes are
// staged and only sent once the surrounding transaction has committed, so a
// client never sees an event for state that was rolled back.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/realtime"
)

// NotificationDTO is the wire form of a notification record.
type NotificationDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	EventType string    `json:"eventType"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToNotificationDTO converts a domain notification.
func ToNotificationDTO(n *notification.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID(),
		UserID:    n.UserID(),
		EventType: n.EventType(),
		Message:   n.Message(),
		Read:      n.Read(),
		CreatedAt: n.CreatedAt(),
	}
}

// MessageDTO is the wire form of a chat message.
type MessageDTO struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"senderId"`
	ReceiverID uuid.UUID  `json:"receiverId"`
	Content    string     `json:"content"`
	BookingID  *uuid.UUID `json:"bookingId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ToMessageDTO converts a domain message.
func ToMessageDTO(m *notification.Message) MessageDTO {
	return MessageDTO{
		ID:         m.ID(),
		SenderID:   m.SenderID(),
		ReceiverID: m.ReceiverID(),
		Content:    m.Content(),
		BookingID:  m.BookingID(),
		CreatedAt:  m.CreatedAt(),
	}
}

// Dispatcher creates batches bound to a live-channel publisher.
type Dispatcher struct {
	publisher realtime.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(publisher realtime.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the time source used for new records.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Begin starts a new batch. A batch is not safe for concurrent use.
func (d *Dispatcher) Begin() *Batch {
	return &Batch{d: d}
}

type delivery struct {
	userID uuid.UUID
	event  realtime.Event
}

// Batch accumulates pushes for records written in one unit of work.
type Batch struct {
	d       *Dispatcher
	pending []delivery
}

// Notify writes a notification for recipientID and stages a
// new_notification push carrying the full record.
func (b *Batch) Notify(ctx context.Context, repo notification.NotificationRepository, recipientID uuid.UUID, eventType, text string) (*notification.Notification, error) {
	n, err := notification.NewNotification(recipientID, eventType, text, b.d.now())
	if err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, n); err != nil {
		return nil, err
	}
	b.Emit(recipientID, realtime.EventNewNotification, ToNotificationDTO(n))
	return n, nil
}

// Message writes m and stages a new_message push to both participants.
func (b *Batch) Message(ctx context.Context, repo notification.MessageRepository, m *notification.Message) error {
	if err := repo.Save(ctx, m); err != nil {
		return err
	}
	dto := ToMessageDTO(m)
	b.Emit(m.SenderID(), realtime.EventNewMessage, dto)
	b.Emit(m.ReceiverID(), realtime.EventNewMessage, dto)
	return nil
}

// Emit stages a live-only event with no durable record behind it.
func (b *Batch) Emit(userID uuid.UUID, name string, payload interface{}) {
	evt, err := realtime.NewEvent(name, payload)
	if err != nil {
		b.d.logger.Error("failed to build event", zap.String("event", name), zap.Error(err))
		return
	}
	b.pending = append(b.pending, delivery{userID: userID, event: evt})
}

// Len returns the number of staged pushes.
func (b *Batch) Len() int { return len(b.pending) }

// Reset discards staged pushes. Call it when the unit of work is retried or
// rolled back.
func (b *Batch) Reset() { b.pending = b.pending[:0] }

// Flush hands every staged push to the publisher in staging order and
// empties the batch.
func (b *Batch) Flush(ctx context.Context) {
	for _, p := range b.pending {
		b.d.publisher.Publish(ctx, p.userID, p.event)
	}
	b.pending = nil
}
