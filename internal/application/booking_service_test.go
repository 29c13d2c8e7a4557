package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/penalty"
	"github.com/taskhive/service-booking/internal/domain/store"
	"github.com/taskhive/service-booking/internal/events"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/domain"
)

func TestBookingService_CreateBooking_Success(t *testing.T) {
	env := newTestEnv(t)
	requesterID := env.store.AddUser("Rina", auth.RoleRequester)
	providerID := env.store.AddUser("Pablo", auth.RoleProvider)

	req := bookingRequest(providerID, "2025-06-12", "09:30")
	req.Notes = "ring twice"
	dto, err := env.bookings.CreateBooking(context.Background(), requester(requesterID), req)

	require.NoError(t, err)
	assert.Equal(t, "pending", dto.Status)
	assert.Equal(t, "2025-06-12", dto.Date)
	assert.Equal(t, "09:30", dto.Time)
	assert.Equal(t, int64(1), dto.Version)
	assert.Equal(t, 1, env.store.BookingCount())

	assert.Equal(t, []string{realtime.EventNewNotification, realtime.EventNewMessage}, env.publisher.namesFor(providerID))
	assert.Equal(t, []string{realtime.EventNewMessage, realtime.EventNewBooking}, env.publisher.namesFor(requesterID))

	unread, err := env.notes.UnreadCount(context.Background(), providerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	thread, err := env.messages.GetBookingThread(context.Background(), provider(providerID), dto.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Contains(t, thread[0].Content, "Pablo")
	assert.Contains(t, thread[0].Content, "ring twice")

	assert.Equal(t, []string{events.BookingCreated}, env.producer.eventTypes())
}

func TestBookingService_CreateBooking_RejectsNonRequester(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.store.AddUser("P", auth.RoleProvider)
	otherProvider := env.store.AddUser("Q", auth.RoleProvider)

	_, err := env.bookings.CreateBooking(context.Background(), provider(providerID), bookingRequest(otherProvider, "2025-06-12", "09:00"))

	assert.True(t, domain.HasCode(err, domain.CodeForbidden))
	assert.Zero(t, env.store.BookingCount())
}

func TestBookingService_CreateBooking_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	tests := []struct {
		name string
		req  CreateBookingRequest
	}{
		{"bad date", bookingRequest(providerID, "12/06/2025", "09:00")},
		{"bad time", bookingRequest(providerID, "2025-06-12", "9am")},
		{"self booking", bookingRequest(requesterID, "2025-06-12", "09:00")},
		{"missing service", CreateBookingRequest{ProviderID: providerID, Date: "2025-06-12", Time: "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.bookings.CreateBooking(context.Background(), requester(requesterID), tt.req)
			assert.True(t, domain.HasCode(err, domain.CodeValidation), "got %v", err)
		})
	}
	assert.Zero(t, env.publisher.count())
}

func TestBookingService_CreateBooking_UnknownOrWrongProvider(t *testing.T) {
	env := newTestEnv(t)
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	otherRequester := env.store.AddUser("S", auth.RoleRequester)

	_, err := env.bookings.CreateBooking(context.Background(), requester(requesterID), bookingRequest(uuid.New(), "2025-06-12", "09:00"))
	assert.True(t, domain.HasCode(err, domain.CodeNotFound), "got %v", err)

	_, err = env.bookings.CreateBooking(context.Background(), requester(requesterID), bookingRequest(otherRequester, "2025-06-12", "09:00"))
	assert.True(t, domain.HasCode(err, domain.CodeValidation), "got %v", err)
}

func TestBookingService_CreateBooking_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.store.AddUser("Alice", auth.RoleRequester)
	bob := env.store.AddUser("Bob", auth.RoleRequester)
	p1 := env.store.AddUser("P1", auth.RoleProvider)
	p2 := env.store.AddUser("P2", auth.RoleProvider)

	_, err := env.bookings.CreateBooking(ctx, requester(alice), bookingRequest(p1, "2025-06-15", "10:00"))
	require.NoError(t, err)

	t.Run("past date", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, requester(bob), bookingRequest(p2, "2025-06-09", "10:00"))
		assert.True(t, domain.IsConflictKind(err, string(bookingDomain.ConflictPastDate)), "got %v", err)
	})

	t.Run("today is allowed", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, requester(bob), bookingRequest(p2, "2025-06-10", "08:00"))
		assert.NoError(t, err)
	})

	t.Run("requester double booked", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, requester(alice), bookingRequest(p2, "2025-06-15", "10:00"))
		assert.True(t, domain.IsConflictKind(err, string(bookingDomain.ConflictRequesterDoubleBooked)), "got %v", err)
	})

	t.Run("provider unavailable", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, requester(bob), bookingRequest(p1, "2025-06-15", "10:00"))
		assert.True(t, domain.IsConflictKind(err, string(bookingDomain.ConflictProviderUnavailable)), "got %v", err)
	})

	t.Run("duplicate pending", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, requester(alice), bookingRequest(p1, "2025-06-16", "10:00"))
		assert.True(t, domain.IsConflictKind(err, string(bookingDomain.ConflictDuplicatePending)), "got %v", err)
	})

	assert.Equal(t, 2, env.store.BookingCount())
}

func TestBookingService_CreateBooking_ConcurrentSameSlot(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.store.AddUser("Busy", auth.RoleProvider)

	const contenders = 10
	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < contenders; i++ {
		id := env.store.AddUser(fmt.Sprintf("r%d", i), auth.RoleRequester)
		g.Go(func() error {
			_, err := env.bookings.CreateBooking(context.Background(), requester(id), bookingRequest(providerID, "2025-06-20", "15:00"))
			switch {
			case err == nil:
				wins.Add(1)
			case domain.IsConflictKind(err, string(bookingDomain.ConflictProviderUnavailable)):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(contenders-1), conflicts.Load())
	assert.Equal(t, 1, env.store.BookingCount())
}

func TestBookingService_CreateBooking_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-12", "09:00"))

	assert.True(t, domain.HasCode(err, domain.CodeTransient), "got %v", err)
	assert.Zero(t, env.store.BookingCount())
	assert.Zero(t, env.publisher.count())
}

// failingMessages wraps a store so that saving a message fails.
type failingMessages struct {
	store.Store
}

type brokenMessageRepo struct {
	notification.MessageRepository
}

func (brokenMessageRepo) Save(context.Context, *notification.Message) error {
	return errors.New("disk full")
}

func (f failingMessages) Messages() notification.MessageRepository {
	return brokenMessageRepo{}
}

func (f failingMessages) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(failingMessages{tx})
	})
}

func TestBookingService_CreateBooking_RollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	logger := zap.NewNop()
	svc := NewBookingService(failingMessages{env.store}, notify.NewDispatcher(env.publisher, logger), env.producer, BookingServiceConfig{
		Clock: func() time.Time { return fixedNow },
	}, logger)

	_, err := svc.CreateBooking(context.Background(), requester(requesterID), bookingRequest(providerID, "2025-06-12", "09:00"))

	require.Error(t, err)
	assert.Zero(t, env.store.BookingCount())
	unread, err := env.notes.UnreadCount(context.Background(), providerID)
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.Zero(t, env.publisher.count())
	assert.Empty(t, env.producer.eventTypes())
}

func TestBookingService_CancelBooking_Ladder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	requesterID := env.store.AddUser("Flaky", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	want := []penalty.OutcomeKind{penalty.OutcomeNone, penalty.OutcomeWarning, penalty.OutcomeRestricted}
	for i, kind := range want {
		dto, err := env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, fmt.Sprintf("2025-06-%d", 11+i), "10:00"))
		require.NoError(t, err)

		res, err := env.bookings.CancelBooking(ctx, requester(requesterID), dto.ID)
		require.NoError(t, err)
		assert.Equal(t, "cancelled", res.Booking.Status)
		assert.Equal(t, int64(2), res.Booking.Version)
		assert.Equal(t, kind, res.Outcome.Kind)
		assert.Equal(t, i+1, res.Outcome.Count)
		if kind == penalty.OutcomeNone {
			assert.Empty(t, res.Warning)
		} else {
			assert.Equal(t, res.Outcome.Message, res.Warning)
		}
	}

	standing, err := env.bookings.GetStanding(ctx, requesterID)
	require.NoError(t, err)
	assert.Equal(t, 3, standing.CancellationCount)
	assert.True(t, standing.Restricted)
	require.NotNil(t, standing.RestrictedUntil)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), *standing.RestrictedUntil)

	logged := env.store.CancellationEvents(requesterID)
	require.Len(t, logged, 3)
	assert.Equal(t, penalty.OutcomeRestricted, logged[2].Outcome)

	_, err = env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-20", "10:00"))
	assert.True(t, domain.IsConflictKind(err, string(bookingDomain.ConflictRequesterRestricted)), "got %v", err)

	assert.Contains(t, env.producer.eventTypes(), events.RequesterRestricted)

	// Once the restriction has run out the requester may book again.
	*env.now = fixedNow.Add(8 * 24 * time.Hour)
	_, err = env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-20", "10:00"))
	assert.NoError(t, err)
}

func TestBookingService_CancelBooking_NotifiesBothParties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	dto, err := env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-12", "10:00"))
	require.NoError(t, err)
	before := env.publisher.count()

	_, err = env.bookings.CancelBooking(ctx, requester(requesterID), dto.ID)
	require.NoError(t, err)

	assert.Equal(t, before+4, env.publisher.count())
	assert.Contains(t, env.publisher.namesFor(providerID), realtime.EventBookingCancelled)
	assert.Contains(t, env.publisher.namesFor(requesterID), realtime.EventBookingCancelled)

	inbox, err := env.notes.ListNotifications(ctx, requesterID, 1, 10)
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, realtime.EventBookingCancelled, inbox.Items[0].EventType)
}

func TestBookingService_CancelBooking_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.store.AddUser("Owner", auth.RoleRequester)
	stranger := env.store.AddUser("Stranger", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	dto, err := env.bookings.CreateBooking(ctx, requester(owner), bookingRequest(providerID, "2025-06-12", "10:00"))
	require.NoError(t, err)

	_, err = env.bookings.CancelBooking(ctx, requester(stranger), dto.ID)
	assert.True(t, domain.HasCode(err, domain.CodeForbidden), "got %v", err)

	_, err = env.bookings.CancelBooking(ctx, provider(providerID), dto.ID)
	assert.True(t, domain.HasCode(err, domain.CodeForbidden), "got %v", err)

	_, err = env.bookings.CancelBooking(ctx, requester(owner), uuid.New())
	assert.True(t, domain.HasCode(err, domain.CodeNotFound), "got %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "in_progress")
	require.NoError(t, err)
	_, err = env.bookings.CancelBooking(ctx, requester(owner), dto.ID)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidState), "got %v", err)

	// Rejected cancellations never count against the requester.
	standing, err := env.bookings.GetStanding(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, standing.CancellationCount)
	assert.Empty(t, env.store.CancellationEvents(stranger))
}

func TestBookingService_SetBookingStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)
	otherProvider := env.store.AddUser("Q", auth.RoleProvider)
	admin := bookingDomain.Actor{ID: uuid.New(), Role: auth.RoleAdmin}

	dto, err := env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-12", "10:00"))
	require.NoError(t, err)

	_, err = env.bookings.SetBookingStatus(ctx, provider(otherProvider), dto.ID, "in_progress")
	assert.True(t, domain.HasCode(err, domain.CodeForbidden), "got %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, requester(requesterID), dto.ID, "in_progress")
	assert.True(t, domain.HasCode(err, domain.CodeForbidden), "got %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "archived")
	assert.True(t, domain.HasCode(err, domain.CodeValidation), "got %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "pending")
	assert.True(t, domain.HasCode(err, domain.CodeValidation), "got %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "completed")
	assert.True(t, domain.HasCode(err, domain.CodeInvalidState), "got %v", err)

	updated, err := env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", updated.Status)

	updated, err = env.bookings.SetBookingStatus(ctx, admin, dto.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	assert.Equal(t, int64(3), updated.Version)

	names := env.publisher.namesFor(requesterID)
	assert.Contains(t, names, realtime.EventBookingStatusChanged)
	assert.Equal(t, realtime.EventBookingCompleted, names[len(names)-1])

	standing, err := env.bookings.GetStanding(ctx, requesterID)
	require.NoError(t, err)
	assert.Zero(t, standing.CancellationCount)

	assert.Contains(t, env.producer.eventTypes(), events.BookingCompleted)
}

func TestBookingService_SetBookingStatus_CancelAppliesNoPenalty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	requesterID := env.store.AddUser("R", auth.RoleRequester)
	providerID := env.store.AddUser("P", auth.RoleProvider)

	dto, err := env.bookings.CreateBooking(ctx, requester(requesterID), bookingRequest(providerID, "2025-06-12", "10:00"))
	require.NoError(t, err)

	updated, err := env.bookings.SetBookingStatus(ctx, provider(providerID), dto.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", updated.Status)

	standing, err := env.bookings.GetStanding(ctx, requesterID)
	require.NoError(t, err)
	assert.Zero(t, standing.CancellationCount)
	assert.Empty(t, env.store.CancellationEvents(requesterID))
}

func TestBookingService_GetAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.store.AddUser("Alice", auth.RoleRequester)
	bob := env.store.AddUser("Bob", auth.RoleRequester)
	p1 := env.store.AddUser("P1", auth.RoleProvider)
	admin := bookingDomain.Actor{ID: uuid.New(), Role: auth.RoleAdmin}

	first, err := env.bookings.CreateBooking(ctx, requester(alice), bookingRequest(p1, "2025-06-12", "10:00"))
	require.NoError(t, err)
	_, err = env.bookings.CreateBooking(ctx, requester(bob), bookingRequest(p1, "2025-06-12", "11:00"))
	require.NoError(t, err)

	_, err = env.bookings.GetBooking(ctx, requester(bob), first.ID)
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))

	got, err := env.bookings.GetBooking(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	mine, err := env.bookings.ListBookings(ctx, requester(alice), ListBookingsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)

	asProvider, err := env.bookings.ListBookings(ctx, provider(p1), ListBookingsQuery{Status: "pending", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), asProvider.Total)
	assert.Len(t, asProvider.Items, 1)
	assert.Equal(t, 2, asProvider.TotalPages)

	_, err = env.bookings.ListBookings(ctx, requester(alice), ListBookingsQuery{Role: "admin"})
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))

	_, err = env.bookings.ListBookings(ctx, requester(alice), ListBookingsQuery{Status: "nope"})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))

	all, err := env.bookings.ListAllBookings(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	stats, err := env.bookings.GetBookingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalBookings)
	assert.Equal(t, int64(2), stats.ByStatus["pending"])
}
