package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	EventID       string
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Body          string
	Provider      string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
    event_id    TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notifications (
    id             BIGSERIAL PRIMARY KEY,
    event_id       TEXT NOT NULL,
    appointment_id TEXT NOT NULL,
    kind           TEXT NOT NULL,
    channel        TEXT NOT NULL,
    recipient      TEXT NOT NULL,
    body           TEXT NOT NULL,
    provider       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    error          TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notifications_appointment_idx ON notifications (appointment_id);

CREATE TABLE IF NOT EXISTS reminder_jobs (
    id               BIGSERIAL PRIMARY KEY,
    appointment_id   TEXT NOT NULL UNIQUE,
    recipient        TEXT NOT NULL,
    patient_name     TEXT NOT NULL,
    appointment_date TEXT NOT NULL,
    appointment_time TEXT NOT NULL,
    starts_at        TIMESTAMPTZ NOT NULL,
    remind_at        TIMESTAMPTZ NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending',
    attempts         INT NOT NULL DEFAULT 0,
    max_attempts     INT NOT NULL DEFAULT 3,
    next_run_at      TIMESTAMPTZ NOT NULL,
    last_error       TEXT,
    traceparent      TEXT,
    tracestate       TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS reminder_jobs_due_idx ON reminder_jobs (next_run_at) WHERE status = 'pending';
`

// EnsureSchema creates the inbox, notification log and reminder tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, appointment_id, kind, channel, recipient, body, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, n.EventID, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Body, n.Provider, n.Status, n.Error)
	return err
}
