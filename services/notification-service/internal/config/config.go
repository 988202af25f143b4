// Package config holds the notification-service settings.
package config

import (
	"errors"
	"fmt"
	"time"

	sharedconfig "github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"notification-service"`
	Port        string `env:"PORT" envDefault:"8085"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	DB          db.Options

	KafkaBrokers string   `env:"KAFKA_BROKERS"`
	GroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"notification-service"`
	Topics       []string `env:"KAFKA_CONSUME_TOPICS" envSeparator:"," envDefault:"booking.appointment.booked.v1,booking.appointment.cancelled.v1"`

	ClinicName      string        `env:"CLINIC_NAME"`
	SMSProvider     string        `env:"SMS_PROVIDER" envDefault:"noop"`
	SMSWebhookURL   string        `env:"SMS_WEBHOOK_URL"`
	SMSWebhookToken string        `env:"SMS_WEBHOOK_TOKEN"`
	SMSTimeout      time.Duration `env:"SMS_TIMEOUT" envDefault:"5s"`

	ClinicTimezone       string        `env:"CLINIC_TIMEZONE" envDefault:"UTC"`
	ReminderLead         time.Duration `env:"REMINDER_LEAD" envDefault:"24h"`
	ReminderMaxAttempts  int           `env:"REMINDER_MAX_ATTEMPTS" envDefault:"3"`
	ReminderBackoff      time.Duration `env:"REMINDER_BACKOFF" envDefault:"1m"`
	ReminderPollInterval time.Duration `env:"REMINDER_POLL_INTERVAL" envDefault:"30s"`
	ReminderBatchSize    int           `env:"REMINDER_BATCH_SIZE" envDefault:"50"`

	OTel otelx.Config

	location *time.Location
}

func Load(files ...string) (Config, error) {
	var c Config
	if err := sharedconfig.Load(&c, files...); err != nil {
		return Config{}, err
	}
	if err := sharedconfig.ValidatePort("PORT", c.Port); err != nil {
		return Config{}, err
	}
	if len(c.Brokers()) == 0 {
		return Config{}, errors.New("KAFKA_BROKERS is required")
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	c.location = loc
	if c.ReminderLead <= 0 {
		return Config{}, errors.New("REMINDER_LEAD must be positive")
	}
	return c, nil
}

// Location is the clinic timezone appointment times are expressed in.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) Brokers() []string {
	return kafkax.SplitBrokers(c.KafkaBrokers)
}
