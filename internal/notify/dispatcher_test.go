package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/internal/domain/notification"
	"github.com/taskhive/service-booking/internal/domain/store/memstore"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/auth"
)

type sent struct {
	userID uuid.UUID
	event  realtime.Event
}

type capturePublisher struct {
	sent []sent
}

func (p *capturePublisher) Publish(_ context.Context, userID uuid.UUID, evt realtime.Event) {
	p.sent = append(p.sent, sent{userID: userID, event: evt})
}

type failingNotifications struct {
	notification.NotificationRepository
}

func (failingNotifications) Save(context.Context, *notification.Notification) error {
	return errors.New("insert failed")
}

var fixed = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newDispatcher() (*Dispatcher, *capturePublisher) {
	pub := &capturePublisher{}
	return NewDispatcher(pub, zap.NewNop()).WithClock(func() time.Time { return fixed }), pub
}

func TestBatch_NotifyIsStagedUntilFlush(t *testing.T) {
	d, pub := newDispatcher()
	st := memstore.New()
	userID := st.AddUser("Pablo", auth.RoleProvider)
	ctx := context.Background()

	batch := d.Begin()
	n, err := batch.Notify(ctx, st.Notifications(), userID, realtime.EventNewBooking, "Rina requested a booking.")
	require.NoError(t, err)
	assert.Equal(t, fixed, n.CreatedAt())
	assert.Equal(t, 1, batch.Len())
	assert.Empty(t, pub.sent, "nothing is pushed before Flush")

	stored, err := st.Notifications().FindByID(ctx, n.ID())
	require.NoError(t, err)
	assert.Equal(t, "Rina requested a booking.", stored.Message())

	batch.Flush(ctx)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, userID, pub.sent[0].userID)
	assert.Equal(t, realtime.EventNewNotification, pub.sent[0].event.Name)

	var dto NotificationDTO
	require.NoError(t, json.Unmarshal(pub.sent[0].event.Data, &dto))
	assert.Equal(t, n.ID(), dto.ID)
	assert.Equal(t, realtime.EventNewBooking, dto.EventType)
	assert.Zero(t, batch.Len())
}

func TestBatch_MessageGoesToBothParticipants(t *testing.T) {
	d, pub := newDispatcher()
	st := memstore.New()
	sender, receiver := uuid.New(), uuid.New()

	msg, err := notification.NewMessage(sender, receiver, "hello", nil, fixed)
	require.NoError(t, err)

	batch := d.Begin()
	require.NoError(t, batch.Message(context.Background(), st.Messages(), msg))
	batch.Flush(context.Background())

	require.Len(t, pub.sent, 2)
	assert.Equal(t, sender, pub.sent[0].userID)
	assert.Equal(t, receiver, pub.sent[1].userID)
	for _, s := range pub.sent {
		assert.Equal(t, realtime.EventNewMessage, s.event.Name)
	}
}

func TestBatch_ResetDropsStagedPushes(t *testing.T) {
	d, pub := newDispatcher()
	batch := d.Begin()
	batch.Emit(uuid.New(), realtime.EventBookingCancelled, map[string]string{"bookingId": "x"})
	batch.Emit(uuid.New(), realtime.EventBookingCancelled, map[string]string{"bookingId": "x"})
	require.Equal(t, 2, batch.Len())

	batch.Reset()
	batch.Flush(context.Background())

	assert.Empty(t, pub.sent)
}

func TestBatch_UnmarshalablePayloadIsSkipped(t *testing.T) {
	d, pub := newDispatcher()
	batch := d.Begin()
	batch.Emit(uuid.New(), "broken", func() {})
	batch.Flush(context.Background())

	assert.Empty(t, pub.sent)
}

func TestBatch_FailedWriteIsNotStaged(t *testing.T) {
	d, pub := newDispatcher()
	st := memstore.New()
	userID := uuid.New()
	batch := d.Begin()

	_, err := batch.Notify(context.Background(), failingNotifications{}, userID, realtime.EventNewBooking, "text")
	require.Error(t, err)
	assert.Equal(t, 0, batch.Len())

	n, err := batch.Notify(context.Background(), st.Notifications(), userID, realtime.EventNewBooking, "text")
	require.NoError(t, err)
	batch.Flush(context.Background())

	require.Len(t, pub.sent, 1)
	assert.Equal(t, userID, n.UserID())
}
