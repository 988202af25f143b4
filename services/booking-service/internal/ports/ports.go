// Package ports declares the storage boundaries the booking engine depends on.
package ports

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// ScheduleStore reads schedule reference data. The bool result is false when
// no row exists; that is not an error.
type ScheduleStore interface {
	DayOverride(ctx context.Context, date model.Date) (model.DayOverride, bool, error)
	WeeklySchedule(ctx context.Context, weekday time.Weekday) (model.WeeklySchedule, bool, error)
}

// AppointmentStore is the read side plus a transaction factory for writes.
type AppointmentStore interface {
	Begin(ctx context.Context) (AppointmentTx, error)
	// BookedTimes returns HH:MM times of non-cancelled appointments on date.
	BookedTimes(ctx context.Context, date model.Date) ([]string, error)
	ListByDate(ctx context.Context, date model.Date) ([]model.Appointment, error)
	AppointmentByID(ctx context.Context, id string) (model.Appointment, error)
}

// AppointmentTx groups the writes of one booking or cancellation. Rollback
// after Commit must be a harmless no-op.
type AppointmentTx interface {
	FindOrCreatePatient(ctx context.Context, p model.Patient) (model.Patient, bool, error)
	ActiveAppointmentExists(ctx context.Context, patientID string, date model.Date, at model.Clock) (bool, error)
	BookedTimes(ctx context.Context, date model.Date) ([]string, error)
	// InsertAppointment returns the store-assigned id. Unique index
	// violations surface as model.ErrDuplicateBooking or model.ErrSlotUnavailable.
	InsertAppointment(ctx context.Context, appt model.Appointment) (string, error)
	SetCancellationToken(ctx context.Context, appointmentID, token string) error
	// AppointmentForUpdate locks the row; model.ErrAppointmentNotFound when absent.
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (time.Time, error)
	InsertEvent(ctx context.Context, evt outbox.Event) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
