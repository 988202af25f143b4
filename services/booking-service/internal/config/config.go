// Package config holds the booking-service settings.
package config

import (
	"fmt"
	"time"

	sharedconfig "github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"booking-service"`
	Port        string `env:"PORT" envDefault:"8083"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9083"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	DB          db.Options

	KafkaBrokers    string        `env:"KAFKA_BROKERS"`
	OutboxPollEvery time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CancelTokenSecret string `env:"CANCEL_TOKEN_SECRET,required"`
	ClinicTimezone    string `env:"CLINIC_TIMEZONE" envDefault:"UTC"`
	PublicBaseURL     string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"5"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitFailOpen bool          `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"false"`

	ScheduleCacheTTL   time.Duration `env:"SCHEDULE_CACHE_TTL" envDefault:"5m"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	OTel otelx.Config

	location *time.Location
}

// Load reads .env and the environment and validates the result.
func Load(files ...string) (Config, error) {
	var c Config
	if err := sharedconfig.Load(&c, files...); err != nil {
		return Config{}, err
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if err := sharedconfig.ValidatePort("PORT", c.Port); err != nil {
		return err
	}
	if err := sharedconfig.ValidatePort("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	if len(c.CancelTokenSecret) < canceltoken.MinSecretLength {
		return fmt.Errorf("CANCEL_TOKEN_SECRET: %w", canceltoken.ErrWeakSecret)
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	c.location = loc
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// Location is the clinic's wall-clock zone; UTC until Load succeeds.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
