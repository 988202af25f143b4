package reminders

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
)

const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

type Job struct {
	ID            int64
	AppointmentID string
	Recipient     string
	PatientName   string
	Date          string
	Time          string
	StartsAt      time.Time
	RemindAt      time.Time
	Traceparent   string
	Tracestate    string
	Attempts      int
	MaxAttempts   int
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Schedule stores j unless the appointment already has a reminder.
func (r *Repository) Schedule(ctx context.Context, q db.Querier, j Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO reminder_jobs
			(appointment_id, recipient, patient_name, appointment_date, appointment_time,
			 starts_at, remind_at, next_run_at, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10)
		ON CONFLICT (appointment_id) DO NOTHING
	`, j.AppointmentID, j.Recipient, j.PatientName, j.Date, j.Time, j.StartsAt, j.RemindAt, j.MaxAttempts, traceparent, tracestate)
	return err
}

// Cancel stops a pending reminder. It returns the number of jobs affected.
func (r *Repository) Cancel(ctx context.Context, q db.Querier, appointmentID string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FetchDue locks up to limit pending jobs whose next run is not after now.
func (r *Repository) FetchDue(ctx context.Context, q db.Querier, now time.Time, limit int) ([]Job, error) {
	rows, err := q.Query(ctx, `
		SELECT id, appointment_id, recipient, patient_name, appointment_date, appointment_time,
		       starts_at, remind_at, COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, max_attempts
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.Recipient, &j.PatientName, &j.Date, &j.Time,
			&j.StartsAt, &j.RemindAt, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

// Claim locks due jobs, expires those whose appointment has started and moves
// the rest to sending so no other worker picks them up. Run it in a transaction.
func (r *Repository) Claim(ctx context.Context, q db.Querier, now time.Time, limit int) (due []Job, expired int, err error) {
	jobs, err := r.FetchDue(ctx, q, now, limit)
	if err != nil {
		return nil, 0, err
	}
	var dueIDs, expiredIDs []int64
	for _, j := range jobs {
		if !now.Before(j.StartsAt) {
			expiredIDs = append(expiredIDs, j.ID)
			continue
		}
		dueIDs = append(dueIDs, j.ID)
		due = append(due, j)
	}
	if err := r.SetStatus(ctx, q, expiredIDs, StatusExpired); err != nil {
		return nil, 0, err
	}
	if err := r.SetStatus(ctx, q, dueIDs, StatusSending); err != nil {
		return nil, 0, err
	}
	return due, len(expiredIDs), nil
}

func (r *Repository) SetStatus(ctx context.Context, q db.Querier, ids []int64, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, status)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, q db.Querier, id int64, a Attempt, lastError string) error {
	_, err := q.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, a.Attempts, a.Status, a.NextRunAt, lastError)
	return err
}
