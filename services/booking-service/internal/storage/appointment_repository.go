package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports"
)

// Index names from schema.sql; a violation of either maps to a domain error.
const (
	activePatientSlotIndex = "appointments_active_patient_slot_uniq"
	activeSlotIndex        = "appointments_active_slot_uniq"
)

const selectAppointment = `
	SELECT a.id::text, a.patient_id::text, TRIM(p.first_name || ' ' || p.last_name), p.phone,
		to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
		a.visit_type, a.status, COALESCE(a.cancellation_token, ''), a.created_at, a.cancelled_at
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
`

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ ports.AppointmentStore = (*AppointmentRepository)(nil)

func NewAppointmentRepository(pool *db.Pool, events *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: events}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (ports.AppointmentTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &appointmentTx{tx: tx, outbox: r.outbox}, nil
}

func (r *AppointmentRepository) BookedTimes(ctx context.Context, date model.Date) ([]string, error) {
	return bookedTimes(ctx, r.pool, date)
}

func (r *AppointmentRepository) ListByDate(ctx context.Context, date model.Date) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.appointment_date = $1::date
		ORDER BY a.appointment_time ASC, a.created_at ASC
	`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) AppointmentByID(ctx context.Context, id string) (model.Appointment, error) {
	return appointmentByID(ctx, r.pool, id, "")
}

type appointmentTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *appointmentTx) FindOrCreatePatient(ctx context.Context, p model.Patient) (model.Patient, bool, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO NOTHING
		RETURNING id::text
	`, p.FirstName, p.LastName, p.Phone).Scan(&id)
	if err == nil {
		p.ID = id
		return p, false, nil
	}
	if !db.IsNotFound(err) {
		return model.Patient{}, false, err
	}

	var existing model.Patient
	err = t.tx.QueryRow(ctx, `
		SELECT id::text, first_name, last_name, phone
		FROM patients
		WHERE phone = $1
	`, p.Phone).Scan(&existing.ID, &existing.FirstName, &existing.LastName, &existing.Phone)
	if err != nil {
		return model.Patient{}, false, err
	}
	return existing, true, nil
}

func (t *appointmentTx) ActiveAppointmentExists(ctx context.Context, patientID string, date model.Date, at model.Clock) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1::uuid
				AND appointment_date = $2::date
				AND appointment_time = $3::time
				AND status <> 'cancelled'
		)
	`, patientID, date.String(), at.String()).Scan(&exists)
	return exists, err
}

func (t *appointmentTx) BookedTimes(ctx context.Context, date model.Date) ([]string, error) {
	return bookedTimes(ctx, t.tx, date)
}

func (t *appointmentTx) InsertAppointment(ctx context.Context, appt model.Appointment) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, appointment_date, appointment_time, visit_type, status, cancellation_token, created_at)
		VALUES ($1::uuid, $2::date, $3::time, $4, $5, $6, $7)
		RETURNING id::text
	`, appt.PatientID, appt.Date.String(), appt.Time.String(), appt.VisitType, string(appt.Status),
		appt.CancellationToken, appt.CreatedAt).Scan(&id)
	if err != nil {
		return "", mapInsertError(err)
	}
	return id, nil
}

func (t *appointmentTx) SetCancellationToken(ctx context.Context, appointmentID, token string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments SET cancellation_token = $2 WHERE id = $1::uuid
	`, appointmentID, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAppointmentNotFound
	}
	return nil
}

func (t *appointmentTx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return appointmentByID(ctx, t.tx, id, "FOR UPDATE OF a")
}

func (t *appointmentTx) CancelAppointment(ctx context.Context, id string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now()
		WHERE id = $1::uuid AND status = 'scheduled'
		RETURNING cancelled_at
	`, id).Scan(&cancelledAt)
	if db.IsNotFound(err) {
		return time.Time{}, model.ErrAlreadyCancelled
	}
	return cancelledAt, err
}

func (t *appointmentTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *appointmentTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *appointmentTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// mapInsertError turns unique index violations into booking errors.
func mapInsertError(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case activePatientSlotIndex:
		return model.ErrDuplicateBooking
	case activeSlotIndex:
		return model.ErrSlotUnavailable
	default:
		return fmt.Errorf("unexpected unique violation on %s: %w", constraint, err)
	}
}

func bookedTimes(ctx context.Context, q db.Querier, date model.Date) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE appointment_date = $1::date AND status <> 'cancelled'
		ORDER BY appointment_time
	`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func appointmentByID(ctx context.Context, q db.Querier, id, lock string) (model.Appointment, error) {
	// Token payloads carry arbitrary strings; anything that is not a UUID cannot exist.
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	appt, err := scanAppointment(q.QueryRow(ctx, selectAppointment+`
		WHERE a.id = $1::uuid
	`+lock, id))
	if db.IsNotFound(err) {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return appt, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		date, at    string
		status      string
		cancelledAt *time.Time
	)
	if err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.PatientName,
		&appt.PatientPhone,
		&date,
		&at,
		&appt.VisitType,
		&status,
		&appt.CancellationToken,
		&appt.CreatedAt,
		&cancelledAt,
	); err != nil {
		return model.Appointment{}, err
	}
	var err error
	if appt.Date, err = model.ParseDate(date); err != nil {
		return model.Appointment{}, err
	}
	if appt.Time, err = model.ParseClock(at); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}
