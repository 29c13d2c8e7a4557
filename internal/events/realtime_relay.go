package events

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/pkg/kafka"
)

// CloudEventWriter writes a CloudEvent to a topic. *kafka.Producer satisfies it.
type CloudEventWriter interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// RelayPublisher is a realtime.Publisher that fans pushes out through Kafka
// so that every instance can deliver to the channels it holds.
type RelayPublisher struct {
	writer CloudEventWriter
	logger *zap.Logger
}

// NewRelayPublisher creates a new RelayPublisher.
func NewRelayPublisher(writer CloudEventWriter, logger *zap.Logger) *RelayPublisher {
	return &RelayPublisher{writer: writer, logger: logger}
}

// Publish implements realtime.Publisher. Failures are logged and dropped.
func (p *RelayPublisher) Publish(ctx context.Context, userID uuid.UUID, evt realtime.Event) {
	cloudEvent, err := kafka.NewCloudEvent(Source, RealtimeDelivery, realtime.Envelope{UserID: userID, Event: evt})
	if err != nil {
		p.logger.Error("failed to create relay event", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	cloudEvent.Subject = userID.String()

	if err := p.writer.PublishEvent(ctx, TopicRealtimeEvents, cloudEvent); err != nil {
		p.logger.Warn("failed to relay realtime event",
			zap.String("user_id", userID.String()),
			zap.String("event", evt.Name),
			zap.Error(err),
		)
	}
}

// Pusher delivers an event to local channels. *realtime.Hub satisfies it.
type Pusher interface {
	Push(userID uuid.UUID, evt realtime.Event) int
}

// RealtimeConsumer reads relayed pushes and hands them to the local hub.
type RealtimeConsumer struct {
	consumer *kafka.Consumer
	hub      Pusher
	logger   *zap.Logger
}

// NewRealtimeConsumer creates a new RealtimeConsumer. groupID must be unique
// per instance so that every instance sees every push.
func NewRealtimeConsumer(brokers []string, groupID string, hub Pusher, logger *zap.Logger) *RealtimeConsumer {
	return &RealtimeConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, TopicRealtimeEvents, logger),
		hub:      hub,
		logger:   logger,
	}
}

// Start begins consuming relayed pushes. This blocks until the context is cancelled.
func (c *RealtimeConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *RealtimeConsumer) Close() error {
	return c.consumer.Close()
}

func (c *RealtimeConsumer) handleMessage(_ context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from realtime topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case RealtimeDelivery:
		return c.handleDelivery(cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled realtime event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *RealtimeConsumer) handleDelivery(cloudEvent kafka.CloudEvent) error {
	var env realtime.Envelope
	if err := cloudEvent.ParseData(&env); err != nil {
		c.logger.Error("failed to parse realtime envelope", zap.Error(err))
		return nil // Don't retry malformed data
	}

	delivered := c.hub.Push(env.UserID, env.Event)
	c.logger.Debug("relayed event delivered",
		zap.String("user_id", env.UserID.String()),
		zap.String("event", env.Event.Name),
		zap.Int("channels", delivered),
	)
	return nil
}
