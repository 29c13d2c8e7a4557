// Package events holds the Kafka topics, CloudEvent types and payloads the
// booking service produces, and the consumers it runs.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicBookingEvents  = "booking.events"
	TopicRealtimeEvents = "realtime.events"
)

// CloudEvent types on TopicBookingEvents.
const (
	BookingCreated       = "booking.created"
	BookingCancelled     = "booking.cancelled"
	BookingStatusChanged = "booking.status_changed"
	BookingCompleted     = "booking.completed"
	RequesterRestricted  = "requester.restricted"
)

// RealtimeDelivery is the CloudEvent type carrying a realtime.Envelope.
const RealtimeDelivery = "realtime.delivery"

// Source identifies this service in CloudEvents.
const Source = "service-booking"

// BookingCreatedEvent is published after a booking is stored.
type BookingCreatedEvent struct {
	BookingID   uuid.UUID `json:"bookingId"`
	RequesterID uuid.UUID `json:"requesterId"`
	ProviderID  uuid.UUID `json:"providerId"`
	ServiceID   uuid.UUID `json:"serviceId"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// BookingCancelledEvent is published after a requester cancels.
type BookingCancelledEvent struct {
	BookingID         uuid.UUID `json:"bookingId"`
	RequesterID       uuid.UUID `json:"requesterId"`
	ProviderID        uuid.UUID `json:"providerId"`
	CancellationCount int       `json:"cancellationCount"`
	Outcome           string    `json:"outcome"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// BookingStatusChangedEvent is published after an admin or provider moves a
// booking.
type BookingStatusChangedEvent struct {
	BookingID   uuid.UUID `json:"bookingId"`
	RequesterID uuid.UUID `json:"requesterId"`
	ProviderID  uuid.UUID `json:"providerId"`
	OldStatus   string    `json:"oldStatus"`
	NewStatus   string    `json:"newStatus"`
	ChangedBy   uuid.UUID `json:"changedBy"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// BookingCompletedEvent is published when a booking reaches completed.
type BookingCompletedEvent struct {
	BookingID   uuid.UUID `json:"bookingId"`
	RequesterID uuid.UUID `json:"requesterId"`
	ProviderID  uuid.UUID `json:"providerId"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RequesterRestrictedEvent is published when a cancellation suspends a
// requester's booking rights.
type RequesterRestrictedEvent struct {
	RequesterID       uuid.UUID `json:"requesterId"`
	CancellationCount int       `json:"cancellationCount"`
	RestrictedUntil   time.Time `json:"restrictedUntil"`
	OccurredAt        time.Time `json:"occurredAt"`
}
