// Package messages renders booking events into patient-facing SMS text.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Topics published by booking-service.
const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

const (
	KindConfirmation = "appointment_confirmation"
	KindCancellation = "appointment_cancellation"
	KindReminder     = "appointment_reminder"
)

var (
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrIncompleteEvent  = errors.New("event is missing required fields")
)

type booked struct {
	AppointmentID         string    `json:"appointment_id"`
	PatientName           string    `json:"patient_name"`
	PatientPhone          string    `json:"patient_phone"`
	Date                  string    `json:"date"`
	Time                  string    `json:"time"`
	CancellationURL       string    `json:"cancellation_url"`
	CancellationExpiresAt time.Time `json:"cancellation_expires_at"`
}

type cancelled struct {
	AppointmentID string `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	PatientPhone  string `json:"patient_phone"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

// Message is one SMS ready to send, plus the appointment it is about.
type Message struct {
	AppointmentID string
	Kind          string
	Recipient     string
	Body          string
	PatientName   string
	Date          string
	Time          string
}

type Formatter struct {
	clinic string
}

func NewFormatter(clinicName string) Formatter {
	return Formatter{clinic: strings.TrimSpace(clinicName)}
}

// Render decodes payload according to eventType and builds the SMS for it.
func (f Formatter) Render(eventType string, payload []byte) (Message, error) {
	switch eventType {
	case EventAppointmentBooked:
		var e booked
		if err := json.Unmarshal(payload, &e); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if e.AppointmentID == "" || e.PatientPhone == "" || e.Date == "" || e.Time == "" {
			return Message{}, ErrIncompleteEvent
		}
		body := fmt.Sprintf("Hola %s, tu cita ha sido confirmada para el %s a las %s.", greeting(e.PatientName), e.Date, e.Time)
		if e.CancellationURL != "" {
			body += " Si necesitas cancelar: " + e.CancellationURL
		}
		return Message{
			AppointmentID: e.AppointmentID,
			Kind:          KindConfirmation,
			Recipient:     e.PatientPhone,
			Body:          f.prefix("Cita Confirmada") + body,
			PatientName:   e.PatientName,
			Date:          e.Date,
			Time:          e.Time,
		}, nil
	case EventAppointmentCancelled:
		var e cancelled
		if err := json.Unmarshal(payload, &e); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if e.AppointmentID == "" || e.PatientPhone == "" || e.Date == "" || e.Time == "" {
			return Message{}, ErrIncompleteEvent
		}
		return Message{
			AppointmentID: e.AppointmentID,
			Kind:          KindCancellation,
			Recipient:     e.PatientPhone,
			Body:          f.prefix("Cita Cancelada") + fmt.Sprintf("Tu cita del %s a las %s ha sido cancelada.", e.Date, e.Time),
			PatientName:   e.PatientName,
			Date:          e.Date,
			Time:          e.Time,
		}, nil
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}

// Reminder is the text sent ahead of an appointment.
func (f Formatter) Reminder(patientName, date, at string) string {
	return f.prefix("Recordatorio de Cita") + fmt.Sprintf("Hola %s, tienes una cita el %s a las %s.", greeting(patientName), date, at)
}

func (f Formatter) prefix(title string) string {
	if f.clinic == "" {
		return title + ": "
	}
	return title + " - " + f.clinic + ": "
}

func greeting(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "paciente"
}
