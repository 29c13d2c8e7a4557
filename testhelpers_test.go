//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskhive/service-booking/internal/application"
	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	bookingEvents "github.com/taskhive/service-booking/internal/events"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/internal/repository"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/database"
	"github.com/taskhive/service-booking/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// bookingStack holds wired-up booking service components.
type bookingStack struct {
	Service         *application.BookingService
	Messages        *application.MessageService
	Hub             *realtime.Hub
	Store           *repository.GormStore
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the
// SQL migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()

	// Start PostgreSQL container with log-based wait strategy.
	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_booking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pgCfg := database.PostgresConfig{
		Host:         pgHost,
		Port:         pgPort.Port(),
		User:         "test",
		Password:     "test",
		DBName:       "test_booking",
		SSLMode:      "disable",
		MaxOpenConns: 30,
	}

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(pgCfg, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(pgCfg.DatabaseURL(), "migrations", logger))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, bookingEvents.TopicBookingEvents, bookingEvents.TopicRealtimeEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBookingStack wires up the full booking service stack with pushes
// going straight to a local hub.
func setupBookingStack(t *testing.T, db *gorm.DB, brokers []string) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	st := repository.NewGormStore(db)
	hub := realtime.NewHub(logger)
	dispatcher := notify.NewDispatcher(hub, logger)
	producer := kafka.NewProducer(brokers, logger)
	bookingSvc := application.NewBookingService(st, dispatcher, producer, application.BookingServiceConfig{}, logger)
	messageSvc := application.NewMessageService(st, dispatcher, 0, logger)

	return &bookingStack{
		Service:         bookingSvc,
		Messages:        messageSvc,
		Hub:             hub,
		Store:           st,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedUser inserts a user with the given role and returns its ID.
func seedUser(t *testing.T, db *gorm.DB, role auth.Role, name string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	model := repository.UserModel{
		ID:        uuid.New(),
		Name:      name,
		Role:      string(role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed user")
	return model.ID
}

func requesterActor(id uuid.UUID) bookingDomain.Actor {
	return bookingDomain.Actor{ID: id, Role: auth.RoleRequester}
}

// futureDate returns a date n days from today in booking format.
func futureDate(n int) string {
	return time.Now().UTC().AddDate(0, 0, n).Format(bookingDomain.DateLayout)
}

// recordingChannel is a realtime.Channel that keeps every event it is sent.
type recordingChannel struct {
	id     string
	mu     sync.Mutex
	events []realtime.Event
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{id: uuid.NewString()}
}

func (c *recordingChannel) ID() string { return c.id }

func (c *recordingChannel) Send(evt realtime.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return true
}

func (c *recordingChannel) Close() {}

func (c *recordingChannel) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Name
	}
	return out
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
