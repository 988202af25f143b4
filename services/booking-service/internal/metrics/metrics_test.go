package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcomeLabels(t *testing.T) {
	cases := map[string]error{
		"ok":            nil,
		"not_bookable":  &model.NotBookableError{Reason: model.ReasonNotWorkingDay},
		"duplicate":     fmt.Errorf("book: %w", model.ErrDuplicateBooking),
		"window_closed": model.ErrCancellationWindowClosed,
		"error":         errors.New("db down"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v): expected %s, got %s", err, want, got)
		}
	}
}

func TestCountersRegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Booking(nil)
	m.Booking(model.ErrSlotUnavailable)
	m.Booking(model.ErrSlotUnavailable)

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("slot_unavailable")); got != 2 {
		t.Fatalf("expected 2 slot_unavailable bookings, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.Booking(nil)
	nilMetrics.OutboxPending(3)
}
