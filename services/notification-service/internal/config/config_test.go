package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	c, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Topics) != 2 || c.Topics[1] != "booking.appointment.cancelled.v1" {
		t.Fatalf("unexpected topics %v", c.Topics)
	}
	if b := c.Brokers(); len(b) != 2 || b[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", b)
	}
	if c.SMSProvider != "noop" {
		t.Fatalf("unexpected sms provider %q", c.SMSProvider)
	}
	if c.ReminderLead != 24*time.Hour || c.Location() != time.UTC {
		t.Fatalf("unexpected reminder settings: lead=%s loc=%s", c.ReminderLead, c.Location())
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestLoadRequiresBrokers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("KAFKA_BROKERS", " , ")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
