package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/internal/domain/store/memstore"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/kafka"
)

// mockEventPublisher is a testify mock of EventPublisher.
type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func (m *mockEventPublisher) eventTypes() []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(2).(kafka.CloudEvent).Type)
	}
	return out
}

type pushed struct {
	userID uuid.UUID
	event  realtime.Event
}

// recordingPublisher captures every push handed to it.
type recordingPublisher struct {
	mu     sync.Mutex
	pushes []pushed
}

func (p *recordingPublisher) Publish(_ context.Context, userID uuid.UUID, evt realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{userID: userID, event: evt})
}

func (p *recordingPublisher) namesFor(userID uuid.UUID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ps := range p.pushes {
		if ps.userID == userID {
			out = append(out, ps.event.Name)
		}
	}
	return out
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

// fixedNow is the clock every test env starts at.
var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *memstore.Store
	publisher *recordingPublisher
	producer  *mockEventPublisher
	bookings  *BookingService
	messages  *MessageService
	notes     *NotificationService
	now       *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	now := fixedNow
	clock := func() time.Time { return now }

	st := memstore.New()
	pub := &recordingPublisher{}
	producer := &mockEventPublisher{}
	producer.On("PublishEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dispatcher := notify.NewDispatcher(pub, logger).WithClock(clock)

	msgSvc := NewMessageService(st, dispatcher, 0, logger)
	msgSvc.now = clock

	return &testEnv{
		store:     st,
		publisher: pub,
		producer:  producer,
		bookings:  NewBookingService(st, dispatcher, producer, BookingServiceConfig{Clock: clock}, logger),
		messages:  msgSvc,
		notes:     NewNotificationService(st, 0, logger),
		now:       &now,
	}
}

func requester(id uuid.UUID) bookingDomain.Actor {
	return bookingDomain.Actor{ID: id, Role: auth.RoleRequester}
}

func provider(id uuid.UUID) bookingDomain.Actor {
	return bookingDomain.Actor{ID: id, Role: auth.RoleProvider}
}

func bookingRequest(providerID uuid.UUID, date, clock string) CreateBookingRequest {
	return CreateBookingRequest{
		ProviderID: providerID,
		ServiceID:  uuid.New(),
		Date:       date,
		Time:       clock,
	}
}
