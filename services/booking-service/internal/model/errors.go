package model

import "errors"

var (
	ErrNotBookable              = errors.New("day is not bookable")
	ErrNoScheduleConfigured     = errors.New("no schedule configured for this day")
	ErrSlotUnavailable          = errors.New("requested time is not available")
	ErrDuplicateBooking         = errors.New("an active appointment already exists for this patient at that date and time")
	ErrInvalidToken             = errors.New("invalid or expired cancellation token")
	ErrCancellationWindowClosed = errors.New("appointments can only be cancelled at least 12 hours in advance")
	ErrAlreadyCancelled         = errors.New("appointment is already cancelled")
	ErrTokenMismatch            = errors.New("cancellation token does not match the appointment")
	ErrAppointmentNotFound      = errors.New("appointment not found")
)

// Reasons reported for unbookable days.
const (
	ReasonNotWorkingDay     = "Not a working day"
	ReasonMarkedUnavailable = "Day marked as unavailable"
	ReasonNoSchedule        = "No available slots configured for this day of week"
	ReasonNoOverrideWindows = "No schedule configured for this day"
)

// NotBookableError is a deliberate closure of a day. It matches ErrNotBookable.
type NotBookableError struct {
	Reason string
}

func (e *NotBookableError) Error() string {
	return ErrNotBookable.Error() + ": " + e.Reason
}

func (e *NotBookableError) Is(target error) bool {
	return target == ErrNotBookable
}
