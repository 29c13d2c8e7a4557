package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/service-booking/pkg/domain"
)

// ConflictKind names the reason a booking cannot be created.
type ConflictKind string

const (
	ConflictPastDate              ConflictKind = "past_date"
	ConflictRequesterRestricted   ConflictKind = "requester_restricted"
	ConflictRequesterDoubleBooked ConflictKind = "requester_double_booked"
	ConflictProviderUnavailable   ConflictKind = "provider_unavailable"
	ConflictDuplicatePending      ConflictKind = "duplicate_pending"
)

// Proposal is a booking that has not been stored yet.
type Proposal struct {
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
	Slot        Slot
	// RestrictedUntil is the requester's booking restriction, if any.
	RestrictedUntil *time.Time
}

// NewConflictError builds the client-visible error for a conflict kind. The
// same error is produced whether the conflict was detected by Validate or by
// a unique index in the store.
func NewConflictError(kind ConflictKind, slot Slot, restrictedUntil *time.Time) error {
	var msg string
	switch kind {
	case ConflictPastDate:
		msg = fmt.Sprintf("cannot book %s: date is in the past", slot.Date)
	case ConflictRequesterRestricted:
		until := "further notice"
		if restrictedUntil != nil {
			until = restrictedUntil.UTC().Format(time.RFC3339)
		}
		msg = fmt.Sprintf("booking is restricted until %s after repeated cancellations", until)
	case ConflictRequesterDoubleBooked:
		msg = fmt.Sprintf("you already have a booking on %s at %s", slot.Date, slot.Time)
	case ConflictProviderUnavailable:
		msg = fmt.Sprintf("provider is not available on %s at %s", slot.Date, slot.Time)
	case ConflictDuplicatePending:
		msg = "you already have a pending booking with this provider"
	default:
		msg = "booking conflicts with an existing booking"
	}
	return domain.NewSchedulingConflictError(string(kind), msg)
}

// Validate decides whether p may be stored given the bookings that share its
// requester or provider. existing must contain at least every booking that
// either occupies p.Slot for the requester or the provider, or is pending
// between the same requester and provider.
func Validate(p Proposal, existing []*Booking, now time.Time) error {
	if p.Slot.IsBefore(now) {
		return NewConflictError(ConflictPastDate, p.Slot, nil)
	}
	if p.RestrictedUntil != nil && p.RestrictedUntil.After(now) {
		return NewConflictError(ConflictRequesterRestricted, p.Slot, p.RestrictedUntil)
	}

	for _, b := range existing {
		if b.requesterID == p.RequesterID && b.slot == p.Slot {
			return NewConflictError(ConflictRequesterDoubleBooked, p.Slot, nil)
		}
	}
	for _, b := range existing {
		if b.providerID == p.ProviderID && b.slot == p.Slot {
			return NewConflictError(ConflictProviderUnavailable, p.Slot, nil)
		}
	}
	for _, b := range existing {
		if b.requesterID == p.RequesterID && b.providerID == p.ProviderID && b.status == StatusPending {
			return NewConflictError(ConflictDuplicatePending, p.Slot, nil)
		}
	}
	return nil
}
