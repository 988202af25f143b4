// Package notify turns booking events into SMS deliveries and logs each attempt.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const channelSMS = "sms"

// Log persists delivery attempts.
type Log interface {
	Insert(ctx context.Context, n storage.Notification) error
}

// Reminders plans follow-up messages for confirmed appointments.
type Reminders interface {
	Schedule(ctx context.Context, m messages.Message) error
	Cancel(ctx context.Context, appointmentID string) error
}

type Handler struct {
	formatter messages.Formatter
	sender    sms.Sender
	log       Log
	reminders Reminders
	logger    *slog.Logger
}

type Option func(*Handler)

func WithReminders(r Reminders) Option {
	return func(h *Handler) { h.reminders = r }
}

func NewHandler(formatter messages.Formatter, sender sms.Sender, log Log, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{formatter: formatter, sender: sender, log: log, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle sends the SMS for msg. Malformed or unknown events are dropped with a
// log line; only a failure to record the attempt is returned.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	m, err := h.formatter.Render(meta.EventType, msg.Value)
	if err != nil {
		if errors.Is(err, messages.ErrUnsupportedEvent) {
			h.logger.Warn("event ignored", "event_type", meta.EventType, "event_id", meta.EventID)
			return nil
		}
		h.logger.Error("invalid event payload", "err", err, "event_id", meta.EventID)
		return nil
	}

	n := storage.Notification{
		EventID:       meta.EventID,
		AppointmentID: m.AppointmentID,
		Kind:          m.Kind,
		Channel:       channelSMS,
		Recipient:     m.Recipient,
		Body:          m.Body,
		Provider:      h.sender.ProviderID(),
		Status:        storage.StatusSent,
	}
	if err := h.sender.Send(ctx, m.Recipient, m.Body); err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		h.logger.Error("sms send failed", "err", err, "appointment_id", m.AppointmentID)
	}

	if err := h.log.Insert(ctx, n); err != nil {
		h.logger.Error("failed to persist notification", "err", err, "appointment_id", m.AppointmentID)
		return err
	}
	h.trackReminder(ctx, m)
	h.logger.Info("notification processed", "appointment_id", m.AppointmentID, "kind", m.Kind, "status", n.Status)
	return nil
}

// trackReminder keeps the reminder queue in step with the appointment. Failures
// are logged only; the confirmation itself has already been delivered.
func (h *Handler) trackReminder(ctx context.Context, m messages.Message) {
	if h.reminders == nil {
		return
	}
	var err error
	switch m.Kind {
	case messages.KindConfirmation:
		err = h.reminders.Schedule(ctx, m)
	case messages.KindCancellation:
		err = h.reminders.Cancel(ctx, m.AppointmentID)
	}
	if err != nil {
		h.logger.Error("reminder update failed", "err", err, "appointment_id", m.AppointmentID, "kind", m.Kind)
	}
}
