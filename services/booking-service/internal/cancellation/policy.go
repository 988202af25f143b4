package cancellation

import (
	"crypto/subtle"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Enforcer decides whether a verified token may cancel an appointment.
type Enforcer struct {
	loc    *time.Location
	cutoff time.Duration
}

func NewEnforcer(loc *time.Location) *Enforcer {
	if loc == nil {
		loc = time.UTC
	}
	return &Enforcer{loc: loc, cutoff: canceltoken.Cutoff}
}

// Deadline is the last instant (exclusive) at which appt may be cancelled.
func (e *Enforcer) Deadline(appt model.Appointment) time.Time {
	return appt.StartsAt(e.loc).Add(-e.cutoff)
}

// CanCancel returns nil when the cancellation is allowed. presented is the
// raw token string; p is its payload, already verified by the codec.
// The cutoff is checked independently of the token's own expiry.
func (e *Enforcer) CanCancel(appt *model.Appointment, presented string, p canceltoken.Payload, now time.Time) error {
	if appt == nil {
		return model.ErrAppointmentNotFound
	}
	if appt.IsCancelled() {
		return model.ErrAlreadyCancelled
	}
	if !now.Before(e.Deadline(*appt)) {
		return model.ErrCancellationWindowClosed
	}
	if appt.CancellationToken == "" || subtle.ConstantTimeCompare([]byte(appt.CancellationToken), []byte(presented)) != 1 {
		return model.ErrTokenMismatch
	}
	if p.PatientPhone != appt.PatientPhone {
		return model.ErrTokenMismatch
	}
	if p.AppointmentID != appt.ID {
		return model.ErrTokenMismatch
	}
	return nil
}
