package metrics

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinicbook"

// Metrics holds the booking-service collectors. A nil *Metrics records nothing.
type Metrics struct {
	bookings      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	slotLookups   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	outboxPending prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome.",
		}, []string{"outcome"}),
		slotLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_lookups_total",
			Help:      "Availability lookups by schedule type and bookability.",
		}, []string{"type", "bookable"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of booking engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outboxPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_events",
			Help:      "Events written to the outbox and not yet published.",
		}),
	}
}

func (m *Metrics) Booking(err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Cancellation(err error) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) SlotLookup(scheduleType string, bookable bool) {
	if m == nil {
		return
	}
	b := "false"
	if bookable {
		b = "true"
	}
	m.slotLookups.WithLabelValues(scheduleType, b).Inc()
}

// Observe records the time since start under operation.
func (m *Metrics) Observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) OutboxPending(n int64) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

// Outcome is the low-cardinality label for err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotBookable):
		return "not_bookable"
	case errors.Is(err, model.ErrNoScheduleConfigured):
		return "no_schedule"
	case errors.Is(err, model.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, model.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, model.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, model.ErrCancellationWindowClosed):
		return "window_closed"
	case errors.Is(err, model.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, model.ErrTokenMismatch):
		return "token_mismatch"
	case errors.Is(err, model.ErrAppointmentNotFound):
		return "not_found"
	default:
		return "error"
	}
}
