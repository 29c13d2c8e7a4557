package events

import (
	"context"

	"github.com/taskhive/service-booking/pkg/kafka"
)

// NopProducer discards events. It stands in for the Kafka producer when
// Kafka is disabled.
type NopProducer struct{}

// PublishEvent implements application.EventPublisher.
func (NopProducer) PublishEvent(context.Context, string, kafka.CloudEvent) error { return nil }

// Close implements io.Closer.
func (NopProducer) Close() error { return nil }
