package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/pkg/domain"
)

const maxMessageLength = 2000

// Message is a chat message between two users, optionally tied to a booking.
type Message struct {
	id         uuid.UUID
	senderID   uuid.UUID
	receiverID uuid.UUID
	content    string
	bookingID  *uuid.UUID
	createdAt  time.Time
}

// NewMessage validates and creates a message.
func NewMessage(senderID, receiverID uuid.UUID, content string, bookingID *uuid.UUID, now time.Time) (*Message, error) {
	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return nil, domain.NewValidationError("sender and receiver are required")
	}
	if senderID == receiverID {
		return nil, domain.NewValidationError("cannot send a message to yourself")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewValidationError("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, domain.NewValidationError(fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	return &Message{
		id:         uuid.New(),
		senderID:   senderID,
		receiverID: receiverID,
		content:    content,
		bookingID:  bookingID,
		createdAt:  now.UTC(),
	}, nil
}

// ReconstructMessage rebuilds a Message from persistence.
func ReconstructMessage(id, senderID, receiverID uuid.UUID, content string, bookingID *uuid.UUID, createdAt time.Time) *Message {
	return &Message{
		id:         id,
		senderID:   senderID,
		receiverID: receiverID,
		content:    content,
		bookingID:  bookingID,
		createdAt:  createdAt,
	}
}

// ID returns the message ID.
func (m *Message) ID() uuid.UUID {
	return m.id
}

// SenderID returns the sender.
func (m *Message) SenderID() uuid.UUID {
	return m.senderID
}

// ReceiverID returns the receiver.
func (m *Message) ReceiverID() uuid.UUID {
	return m.receiverID
}

// Content returns the message body.
func (m *Message) Content() string {
	return m.content
}

// BookingID returns the booking the message belongs to, or nil for a direct message.
func (m *Message) BookingID() *uuid.UUID {
	return m.bookingID
}

// CreatedAt returns the creation timestamp.
func (m *Message) CreatedAt() time.Time {
	return m.createdAt
}
