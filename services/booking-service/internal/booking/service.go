package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("booking-service/booking")

type Config struct {
	Location      *time.Location
	PublicBaseURL string
	// IntervalMinutes defaults to availability.IntervalMinutes.
	IntervalMinutes int
	Now             func() time.Time
}

// Service runs the booking and cancellation flows on top of the engine parts.
type Service struct {
	resolver *schedule.Resolver
	store    ports.AppointmentStore
	codec    *canceltoken.Codec
	enforcer *cancellation.Enforcer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	loc      *time.Location
	baseURL  string
	interval int
	now      func() time.Time
}

func NewService(
	resolver *schedule.Resolver,
	store ports.AppointmentStore,
	codec *canceltoken.Codec,
	enforcer *cancellation.Enforcer,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = availability.IntervalMinutes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		resolver: resolver,
		store:    store,
		codec:    codec,
		enforcer: enforcer,
		metrics:  m,
		logger:   logger,
		loc:      cfg.Location,
		baseURL:  cfg.PublicBaseURL,
		interval: cfg.IntervalMinutes,
		now:      cfg.Now,
	}
}

// Availability is the slot listing for one date.
type Availability struct {
	Date       model.Date
	Type       model.ScheduleType
	IsBookable bool
	Reason     string
	Slots      []string
}

// AvailableSlots lists the free, not yet started slots of date. An
// unbookable day is a normal result with a reason, not an error.
func (s *Service) AvailableSlots(ctx context.Context, date model.Date) (Availability, error) {
	defer s.metrics.Observe("available_slots", time.Now())
	ctx, span := tracer.Start(ctx, "booking.available_slots", trace.WithAttributes(attribute.String("clinic.date", date.String())))
	defer span.End()

	res, err := s.resolver.Resolve(ctx, date)
	if err != nil {
		return Availability{}, spanError(span, err)
	}
	av := Availability{Date: date, Type: res.Type, IsBookable: res.IsBookable, Reason: res.Reason, Slots: []string{}}
	if res.IsBookable {
		booked, err := s.store.BookedTimes(ctx, date)
		if err != nil {
			return Availability{}, spanError(span, fmt.Errorf("load booked times: %w", err))
		}
		av.Slots = s.openSlots(res, booked)
	}
	s.metrics.SlotLookup(string(av.Type), av.IsBookable)
	span.SetAttributes(attribute.Int("clinic.slots", len(av.Slots)))
	return av, nil
}

func (s *Service) openSlots(res schedule.Resolution, booked []string) []string {
	slots := availability.ExpandWindows(res.Windows, s.interval, booked)
	return availability.DropPast(slots, res.Date, s.now(), s.loc)
}

type Request struct {
	FirstName string
	LastName  string
	Phone     string
	VisitType string
	Date      model.Date
	Time      model.Clock
}

type Booking struct {
	Appointment     model.Appointment
	ExistingPatient bool
	CancellationURL string
	TokenExpiresAt  time.Time
}

// Book reserves req.Time on req.Date. The appointment, its final
// cancellation token and the booked event are committed together.
func (s *Service) Book(ctx context.Context, req Request) (out Booking, err error) {
	defer s.metrics.Observe("book", time.Now())
	ctx, span := tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("clinic.date", req.Date.String()),
		attribute.String("clinic.time", req.Time.String()),
	))
	defer func() {
		s.metrics.Booking(err)
		if err != nil {
			spanError(span, err)
		}
		span.End()
	}()

	now := s.now()
	res, err := s.resolver.Resolve(ctx, req.Date)
	if err != nil {
		return Booking{}, err
	}
	if err := res.Err(); err != nil {
		return Booking{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("begin booking: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	patient, existing, err := tx.FindOrCreatePatient(ctx, model.Patient{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return Booking{}, fmt.Errorf("find or create patient: %w", err)
	}

	dup, err := tx.ActiveAppointmentExists(ctx, patient.ID, req.Date, req.Time)
	if err != nil {
		return Booking{}, fmt.Errorf("check duplicate booking: %w", err)
	}
	if dup {
		return Booking{}, model.ErrDuplicateBooking
	}

	booked, err := tx.BookedTimes(ctx, req.Date)
	if err != nil {
		return Booking{}, fmt.Errorf("load booked times: %w", err)
	}
	if !availability.Contains(s.openSlots(res, booked), req.Time) {
		return Booking{}, model.ErrSlotUnavailable
	}

	draft, err := s.codec.Draft(canceltoken.Subject{
		PatientID:    patient.ID,
		PatientPhone: patient.Phone,
		Date:         req.Date,
		Time:         req.Time,
	}, now)
	if err != nil {
		return Booking{}, err
	}

	appt := model.Appointment{
		PatientID:         patient.ID,
		PatientName:       patient.FullName(),
		PatientPhone:      patient.Phone,
		Date:              req.Date,
		Time:              req.Time,
		VisitType:         strings.TrimSpace(req.VisitType),
		Status:            model.StatusScheduled,
		CancellationToken: draft.Token,
		CreatedAt:         now,
	}
	appt.ID, err = tx.InsertAppointment(ctx, appt)
	if err != nil {
		return Booking{}, err
	}

	final, err := s.codec.Finalize(draft, appt.ID, now)
	if err != nil {
		return Booking{}, err
	}
	if err := tx.SetCancellationToken(ctx, appt.ID, final.Token); err != nil {
		return Booking{}, fmt.Errorf("store cancellation token: %w", err)
	}
	appt.CancellationToken = final.Token

	link := canceltoken.CancellationURL(s.baseURL, final.Token)
	if err := s.emit(ctx, tx, appt.ID, outbox.EventAppointmentBooked, AppointmentBooked{
		AppointmentID:         appt.ID,
		PatientID:             patient.ID,
		PatientName:           appt.PatientName,
		PatientPhone:          patient.Phone,
		Date:                  appt.Date.String(),
		Time:                  appt.Time.String(),
		VisitType:             appt.VisitType,
		CancellationURL:       link,
		CancellationExpiresAt: final.Payload.ExpiresAt,
		OccurredAt:            now.UTC(),
	}); err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, fmt.Errorf("commit booking: %w", err)
	}

	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))
	s.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID,
		"patient_id", patient.ID,
		"existing_patient", existing,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
	)
	return Booking{
		Appointment:     appt,
		ExistingPatient: existing,
		CancellationURL: link,
		TokenExpiresAt:  final.Payload.ExpiresAt,
	}, nil
}

// Preview describes what a cancellation token would do right now.
type Preview struct {
	Appointment model.Appointment
	Deadline    time.Time
	CanCancel   bool
	// Denial is set when CanCancel is false.
	Denial error
}

// Inspect verifies token and reports whether the appointment can still be
// cancelled, without changing anything.
func (s *Service) Inspect(ctx context.Context, token string) (Preview, error) {
	ctx, span := tracer.Start(ctx, "booking.inspect_cancellation")
	defer span.End()

	token = strings.TrimSpace(token)
	now := s.now()
	p, err := s.codec.Verify(token, now)
	if err != nil {
		return Preview{}, spanError(span, err)
	}
	appt, err := s.store.AppointmentByID(ctx, p.AppointmentID)
	if err != nil {
		return Preview{}, spanError(span, err)
	}
	denial := s.enforcer.CanCancel(&appt, token, p, now)
	if errors.Is(denial, model.ErrTokenMismatch) {
		// A superseded or foreign token must not reveal the appointment.
		return Preview{}, spanError(span, denial)
	}
	return Preview{
		Appointment: appt,
		Deadline:    s.enforcer.Deadline(appt),
		CanCancel:   denial == nil,
		Denial:      denial,
	}, nil
}

type Cancellation struct {
	Appointment model.Appointment
	CancelledAt time.Time
}

// Cancel moves the appointment behind token from scheduled to cancelled.
func (s *Service) Cancel(ctx context.Context, token string) (out Cancellation, err error) {
	defer s.metrics.Observe("cancel", time.Now())
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer func() {
		s.metrics.Cancellation(err)
		if err != nil {
			spanError(span, err)
		}
		span.End()
	}()

	token = strings.TrimSpace(token)
	now := s.now()
	p, err := s.codec.Verify(token, now)
	if err != nil {
		return Cancellation{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Cancellation{}, fmt.Errorf("begin cancellation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := tx.AppointmentForUpdate(ctx, p.AppointmentID)
	if err != nil {
		return Cancellation{}, err
	}
	if err := s.enforcer.CanCancel(&appt, token, p, now); err != nil {
		return Cancellation{}, err
	}

	cancelledAt, err := tx.CancelAppointment(ctx, appt.ID)
	if err != nil {
		return Cancellation{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt

	if err := s.emit(ctx, tx, appt.ID, outbox.EventAppointmentCancelled, AppointmentCancelled{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		PatientName:   appt.PatientName,
		PatientPhone:  appt.PatientPhone,
		Date:          appt.Date.String(),
		Time:          appt.Time.String(),
		CancelledAt:   cancelledAt.UTC(),
	}); err != nil {
		return Cancellation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Cancellation{}, fmt.Errorf("commit cancellation: %w", err)
	}

	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))
	s.logger.InfoContext(ctx, "appointment cancelled",
		"appointment_id", appt.ID,
		"date", appt.Date.String(),
		"time", appt.Time.String(),
	)
	return Cancellation{Appointment: appt, CancelledAt: cancelledAt}, nil
}

// AppointmentsOn lists every appointment of date, cancelled ones included.
func (s *Service) AppointmentsOn(ctx context.Context, date model.Date) ([]model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.list_by_date")
	defer span.End()
	appts, err := s.store.ListByDate(ctx, date)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("list appointments %s: %w", date, err))
	}
	return appts, nil
}

func (s *Service) emit(ctx context.Context, tx ports.AppointmentTx, aggregateID, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := tx.InsertEvent(ctx, outbox.Event{
		AggregateType: aggregateAppointment,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		return fmt.Errorf("write outbox %s: %w", eventType, err)
	}
	return nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
