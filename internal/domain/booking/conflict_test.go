package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
)

func assertConflict(t *testing.T, err error, kind ConflictKind) {
	t.Helper()
	require.Error(t, err)
	de, ok := domain.AsDomainError(err)
	require.True(t, ok, "not a domain error: %v", err)
	assert.Equal(t, domain.CodeConflict, de.Code)
	assert.Equal(t, string(kind), de.Kind)
}

func TestValidate(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	slot := mustSlot(t, "2025-06-15", "10:00")
	other := mustSlot(t, "2025-06-15", "11:00")

	cancelled := newPending(t, alice, p2, other)
	require.NoError(t, cancelled.CancelBy(Actor{ID: alice, Role: auth.RoleRequester}, testNow))

	tests := []struct {
		name     string
		proposal Proposal
		existing []*Booking
		want     ConflictKind
	}{
		{
			name:     "free slot",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot},
		},
		{
			name:     "past date",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: mustSlot(t, "2025-06-09", "10:00")},
			want:     ConflictPastDate,
		},
		{
			name: "restriction still running",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot,
				RestrictedUntil: timePtr(testNow.Add(time.Hour))},
			want: ConflictRequesterRestricted,
		},
		{
			name: "restriction expired",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot,
				RestrictedUntil: timePtr(testNow.Add(-time.Hour))},
		},
		{
			name:     "requester busy with another provider",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot},
			existing: []*Booking{newPending(t, alice, p2, slot)},
			want:     ConflictRequesterDoubleBooked,
		},
		{
			name:     "cancelled booking still holds requester slot",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: other},
			existing: []*Booking{cancelled},
			want:     ConflictRequesterDoubleBooked,
		},
		{
			name:     "provider taken",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot},
			existing: []*Booking{newPending(t, bob, p1, slot)},
			want:     ConflictProviderUnavailable,
		},
		{
			name:     "pending with same provider",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot},
			existing: []*Booking{newPending(t, alice, p1, other)},
			want:     ConflictDuplicatePending,
		},
		{
			name:     "cancelled pair does not block",
			proposal: Proposal{RequesterID: alice, ProviderID: p2, Slot: slot},
			existing: []*Booking{cancelled},
		},
		{
			name:     "requester conflict wins over provider conflict",
			proposal: Proposal{RequesterID: alice, ProviderID: p1, Slot: slot},
			existing: []*Booking{newPending(t, bob, p1, slot), newPending(t, alice, p2, slot)},
			want:     ConflictRequesterDoubleBooked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.proposal, tt.existing, testNow)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assertConflict(t, err, tt.want)
		})
	}
}

func TestNewConflictError_Messages(t *testing.T) {
	slot := mustSlot(t, "2025-06-15", "10:00")
	until := testNow.Add(7 * 24 * time.Hour)

	err := NewConflictError(ConflictRequesterRestricted, slot, &until)
	assertConflict(t, err, ConflictRequesterRestricted)
	assert.Contains(t, err.Error(), until.Format(time.RFC3339))

	err = NewConflictError(ConflictProviderUnavailable, slot, nil)
	assert.Contains(t, err.Error(), "2025-06-15")
	assert.Contains(t, err.Error(), "10:00")
}

func timePtr(t time.Time) *time.Time { return &t }
