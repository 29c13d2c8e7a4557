package config

import (
	"fmt"
	"time"

	"github.com/taskhive/service-booking/internal/domain/penalty"
	"github.com/taskhive/service-booking/pkg/config"
)

// Realtime relay modes.
const (
	RelayLocal = "local"
	RelayKafka = "kafka"
)

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port        string
	AppEnv      string
	DBConfig    config.DatabaseConfig
	JWTConfig   config.JWTConfig
	KafkaConfig config.KafkaConfig

	// RealtimeRelay selects how pushes reach channels held by other instances.
	RealtimeRelay   string
	StoreTimeout    time.Duration
	RateLimitPerMin int
	WSSendBuffer    int
	Policy          penalty.Policy
}

// Load reads configuration from environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("BOOKING")
	if err != nil {
		return nil, err
	}
	v.SetDefault("DB_NAME", "booking")
	v.SetDefault("REALTIME_RELAY", RelayLocal)

	cfg := &ServiceConfig{
		Port:            config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:          config.GetAppEnv(v),
		DBConfig:        config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:       config.LoadJWTConfig(v),
		KafkaConfig:     config.LoadKafkaConfig(v),
		RealtimeRelay:   v.GetString("REALTIME_RELAY"),
		StoreTimeout:    config.GetDuration(v, "STORE_TIMEOUT", 5*time.Second),
		RateLimitPerMin: config.GetInt(v, "RATE_LIMIT_PER_MIN", 120),
		WSSendBuffer:    config.GetInt(v, "WS_SEND_BUFFER", 32),
	}

	def := penalty.DefaultPolicy()
	cfg.Policy, err = penalty.NewPolicy(
		config.GetInt(v, "WARNING_THRESHOLD", def.WarningThreshold),
		config.GetInt(v, "RESTRICTION_THRESHOLD", def.RestrictionThreshold),
		time.Duration(config.GetInt(v, "RESTRICTION_DAYS", 7))*24*time.Hour,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid cancellation policy: %w", err)
	}

	if cfg.JWTConfig.Secret == "" {
		return nil, fmt.Errorf("BOOKING_JWT_SECRET is required")
	}
	switch cfg.RealtimeRelay {
	case RelayLocal:
	case RelayKafka:
		if !cfg.KafkaConfig.Enabled {
			return nil, fmt.Errorf("REALTIME_RELAY=kafka requires KAFKA_ENABLED=true")
		}
	default:
		return nil, fmt.Errorf("unknown REALTIME_RELAY %q", cfg.RealtimeRelay)
	}
	return cfg, nil
}
