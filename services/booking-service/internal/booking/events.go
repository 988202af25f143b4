package booking

import "time"

const aggregateAppointment = "appointment"

// AppointmentBooked is the payload of outbox.EventAppointmentBooked.
type AppointmentBooked struct {
	AppointmentID         string    `json:"appointment_id"`
	PatientID             string    `json:"patient_id"`
	PatientName           string    `json:"patient_name"`
	PatientPhone          string    `json:"patient_phone"`
	Date                  string    `json:"date"`
	Time                  string    `json:"time"`
	VisitType             string    `json:"visit_type,omitempty"`
	CancellationURL       string    `json:"cancellation_url"`
	CancellationExpiresAt time.Time `json:"cancellation_expires_at"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// AppointmentCancelled is the payload of outbox.EventAppointmentCancelled.
type AppointmentCancelled struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	PatientPhone  string    `json:"patient_phone"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CancelledAt   time.Time `json:"cancelled_at"`
}
