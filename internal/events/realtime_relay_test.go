package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/kafka"
)

type capturingWriter struct {
	topic  string
	events []kafka.CloudEvent
	err    error
}

func (w *capturingWriter) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent) error {
	w.topic = topic
	w.events = append(w.events, event)
	return w.err
}

type capturingPusher struct {
	userIDs []uuid.UUID
	events  []realtime.Event
}

func (p *capturingPusher) Push(userID uuid.UUID, evt realtime.Event) int {
	p.userIDs = append(p.userIDs, userID)
	p.events = append(p.events, evt)
	return 1
}

func TestRelay_PublishThenDeliver(t *testing.T) {
	writer := &capturingWriter{}
	pub := NewRelayPublisher(writer, zap.NewNop())
	userID := uuid.New()

	evt, err := realtime.NewEvent(realtime.EventNewMessage, map[string]string{"content": "hi"})
	require.NoError(t, err)
	pub.Publish(context.Background(), userID, evt)

	require.Len(t, writer.events, 1)
	assert.Equal(t, TopicRealtimeEvents, writer.topic)
	assert.Equal(t, RealtimeDelivery, writer.events[0].Type)
	assert.Equal(t, userID.String(), writer.events[0].Subject)

	raw, err := json.Marshal(writer.events[0])
	require.NoError(t, err)

	pusher := &capturingPusher{}
	consumer := &RealtimeConsumer{hub: pusher, logger: zap.NewNop()}
	require.NoError(t, consumer.handleMessage(context.Background(), kafkago.Message{Value: raw}))

	require.Len(t, pusher.events, 1)
	assert.Equal(t, userID, pusher.userIDs[0])
	assert.Equal(t, realtime.EventNewMessage, pusher.events[0].Name)
	assert.JSONEq(t, `{"content":"hi"}`, string(pusher.events[0].Data))
}

func TestRelay_PublishFailureIsSwallowed(t *testing.T) {
	writer := &capturingWriter{err: errors.New("broker down")}
	pub := NewRelayPublisher(writer, zap.NewNop())

	assert.NotPanics(t, func() {
		pub.Publish(context.Background(), uuid.New(), realtime.Event{Name: realtime.EventNewBooking})
	})
	assert.Len(t, writer.events, 1)
}

func TestRealtimeConsumer_IgnoresForeignAndMalformed(t *testing.T) {
	pusher := &capturingPusher{}
	consumer := &RealtimeConsumer{hub: pusher, logger: zap.NewNop()}

	assert.NoError(t, consumer.handleMessage(context.Background(), kafkago.Message{Value: []byte("{not json")}))

	other, err := kafka.NewCloudEvent(Source, BookingCreated, map[string]string{"id": "x"})
	require.NoError(t, err)
	raw, err := json.Marshal(other)
	require.NoError(t, err)
	assert.NoError(t, consumer.handleMessage(context.Background(), kafkago.Message{Value: raw}))

	assert.Empty(t, pusher.events)
}
