// Package penalty implements the escalating cancellation policy applied to
// requesters who cancel bookings repeatedly.
package penalty

import (
	"fmt"
	"time"
)

// OutcomeKind is the consequence of a cancellation.
type OutcomeKind string

const (
	OutcomeNone       OutcomeKind = "none"
	OutcomeWarning    OutcomeKind = "warning"
	OutcomeRestricted OutcomeKind = "restricted"
)

// State is a requester's cancellation standing. Count only ever grows.
type State struct {
	Count              int
	LastCancellationAt *time.Time
	RestrictedUntil    *time.Time
}

// IsRestricted reports whether new bookings are suspended at now.
func (s State) IsRestricted(now time.Time) bool {
	return s.RestrictedUntil != nil && s.RestrictedUntil.After(now)
}

// Outcome is the result of applying the policy to one cancellation.
type Outcome struct {
	Kind            OutcomeKind `json:"kind"`
	Count           int         `json:"cancellationCount"`
	RestrictedUntil *time.Time  `json:"restrictedUntil,omitempty"`
	Message         string      `json:"message,omitempty"`
}

// Policy holds the thresholds of the escalation ladder.
type Policy struct {
	WarningThreshold     int
	RestrictionThreshold int
	RestrictionPeriod    time.Duration
}

// DefaultPolicy warns on the 2nd cancellation and restricts for seven days
// from the 3rd onwards.
func DefaultPolicy() Policy {
	return Policy{
		WarningThreshold:     2,
		RestrictionThreshold: 3,
		RestrictionPeriod:    7 * 24 * time.Hour,
	}
}

// NewPolicy validates thresholds and returns a Policy.
func NewPolicy(warningAt, restrictAt int, period time.Duration) (Policy, error) {
	if warningAt < 1 || restrictAt <= warningAt {
		return Policy{}, fmt.Errorf("invalid thresholds: warning=%d restriction=%d", warningAt, restrictAt)
	}
	if period <= 0 {
		return Policy{}, fmt.Errorf("restriction period must be positive, got %s", period)
	}
	return Policy{
		WarningThreshold:     warningAt,
		RestrictionThreshold: restrictAt,
		RestrictionPeriod:    period,
	}, nil
}

// Apply records one cancellation at the given instant and returns the new
// state along with its outcome. A restriction always runs for the full period
// from this cancellation, replacing any earlier restriction end.
func (p Policy) Apply(s State, at time.Time) (State, Outcome) {
	at = at.UTC()
	next := State{
		Count:              s.Count + 1,
		LastCancellationAt: &at,
		RestrictedUntil:    s.RestrictedUntil,
	}

	out := Outcome{Kind: OutcomeNone, Count: next.Count}
	switch {
	case next.Count >= p.RestrictionThreshold:
		until := at.Add(p.RestrictionPeriod)
		next.RestrictedUntil = &until
		out.Kind = OutcomeRestricted
		out.RestrictedUntil = &until
		out.Message = fmt.Sprintf(
			"You have cancelled %d bookings. New bookings are suspended until %s.",
			next.Count, until.Format(time.RFC1123),
		)
	case next.Count == p.WarningThreshold:
		out.Kind = OutcomeWarning
		out.Message = fmt.Sprintf(
			"You have cancelled %d bookings. Further cancellations will suspend new bookings for %d days.",
			next.Count, int(p.RestrictionPeriod.Hours()/24),
		)
	}
	return next, out
}
