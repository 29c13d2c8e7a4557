package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Server-to-client event names.
const (
	EventJoined               = "joined"
	EventError                = "error"
	EventPong                 = "pong"
	EventNewBooking           = "new_booking"
	EventNewNotification      = "new_notification"
	EventNewMessage           = "new_message"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingCompleted     = "booking_completed"
)

// Client-to-server frame names.
const (
	FrameJoin = "join"
	FramePing = "ping"
)

// Event is one frame pushed to a channel.
type Event struct {
	Name   string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sentAt"`
}

// NewEvent marshals payload into an Event.
func NewEvent(name string, payload interface{}) (Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
		}
		data = raw
	}
	return Event{Name: name, Data: data, SentAt: time.Now().UTC()}, nil
}

// Envelope addresses an event to a user. It is the unit carried by relays.
type Envelope struct {
	UserID uuid.UUID `json:"userId"`
	Event  Event     `json:"event"`
}

// Publisher delivers events to a user's live channels, best effort. Callers
// never learn whether anyone received the event.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, evt Event)
}
