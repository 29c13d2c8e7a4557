package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/service-booking/internal/application"
	"github.com/taskhive/service-booking/internal/config"
	bookingEvents "github.com/taskhive/service-booking/internal/events"
	"github.com/taskhive/service-booking/internal/handler"
	"github.com/taskhive/service-booking/internal/notify"
	"github.com/taskhive/service-booking/internal/realtime"
	"github.com/taskhive/service-booking/internal/repository"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/database"
	"github.com/taskhive/service-booking/pkg/health"
	"github.com/taskhive/service-booking/pkg/kafka"
	"github.com/taskhive/service-booking/pkg/logger"
	"github.com/taskhive/service-booking/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("realtime_relay", cfg.RealtimeRelay),
		zap.Bool("kafka_enabled", cfg.KafkaConfig.Enabled),
	)

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// The partial unique indexes only exist in the SQL migrations, so they
	// run in every environment.
	if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)

	// Initialize Kafka producer
	var producer interface {
		application.EventPublisher
		Close() error
	} = bookingEvents.NopProducer{}
	if cfg.KafkaConfig.Enabled {
		producer = kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	}
	defer func() { _ = producer.Close() }()

	// Realtime hub and the publisher pushes go through
	hub := realtime.NewHub(log.Named("realtime"))
	var pushPublisher realtime.Publisher = hub
	if cfg.RealtimeRelay == config.RelayKafka {
		pushPublisher = bookingEvents.NewRelayPublisher(producer, log)
	}
	dispatcher := notify.NewDispatcher(pushPublisher, log)

	// Initialize application services
	st := repository.NewGormStore(db)
	bookingService := application.NewBookingService(
		st,
		dispatcher,
		producer,
		application.BookingServiceConfig{
			Policy:       cfg.Policy,
			StoreTimeout: cfg.StoreTimeout,
		},
		log,
	)
	notificationService := application.NewNotificationService(st, cfg.StoreTimeout, log)
	messageService := application.NewMessageService(st, dispatcher, cfg.StoreTimeout, log)

	// Initialize HTTP handlers
	bookingHandler := handler.NewBookingHandler(bookingService, messageService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	messageHandler := handler.NewMessageHandler(messageService)
	adminBookingHandler := handler.NewAdminBookingHandler(bookingService)
	wsHandler := realtime.NewHandler(hub, jwtManager, cfg.WSSendBuffer, log.Named("ws"))

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, "service-booking")
	healthHandler.RegisterRoutes(router)

	// The websocket route is outside the rate limiter; a channel is long lived.
	wsHandler.RegisterRoutes(router)

	// Register API routes
	api := router.Group("", middleware.RateLimitMiddleware(cfg.RateLimitPerMin, jwtManager, log))
	bookingHandler.RegisterRoutes(api, jwtManager)
	notificationHandler.RegisterRoutes(api, jwtManager)
	messageHandler.RegisterRoutes(api, jwtManager)
	adminBookingHandler.RegisterRoutes(api, jwtManager)

	// Create HTTP server. No WriteTimeout: it would cut websocket channels.
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cfg.RealtimeRelay == config.RelayKafka {
		// Every instance needs every push, so each one gets its own group.
		groupID := cfg.KafkaConfig.GroupPrefix + "booking-realtime-" + instanceID()
		relayConsumer := bookingEvents.NewRealtimeConsumer(cfg.KafkaConfig.Brokers, groupID, hub, log)
		defer func() { _ = relayConsumer.Close() }()

		g.Go(func() error {
			log.Info("starting realtime relay consumer", zap.String("group_id", groupID))
			if err := relayConsumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("realtime relay consumer error: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down service-booking...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("service-booking exited with error", zap.Error(err))
	}
	log.Info("service-booking stopped")
}

func instanceID() string {
	suffix := uuid.NewString()[:8]
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + suffix
	}
	return suffix
}
