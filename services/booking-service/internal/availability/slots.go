package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// IntervalMinutes is the fixed spacing between slot starts.
const IntervalMinutes = 20

// GenerateSlots expands w into slot starts spaced interval minutes apart.
// A slot is emitted only if it fits entirely inside the window. Times present
// in booked (compared in canonical HH:MM form) are left out.
func GenerateSlots(w model.Window, interval int, booked []string) []string {
	if interval <= 0 {
		return nil
	}
	total := w.Minutes()
	taken := bookedSet(booked)

	var slots []string
	for i := 0; i <= total-interval; i += interval {
		s := (w.Start + model.Clock(i)).String()
		if _, ok := taken[s]; ok {
			continue
		}
		slots = append(slots, s)
	}
	return slots
}

// ExpandWindows expands every window independently and merges the results
// into one ascending list without duplicates.
func ExpandWindows(windows []model.Window, interval int, booked []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, w := range windows {
		for _, s := range GenerateSlots(w, interval, booked) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	// HH:MM sorts lexically in time order.
	sort.Strings(out)
	return out
}

// DropPast keeps only slots that start after now on date, in the clinic location.
func DropPast(slots []string, date model.Date, now time.Time, loc *time.Location) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		c, err := model.ParseClock(s)
		if err != nil {
			continue
		}
		if date.At(c, loc).After(now) {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether t is one of slots.
func Contains(slots []string, t model.Clock) bool {
	want := t.String()
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}

func bookedSet(booked []string) map[string]struct{} {
	set := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		if c, ok := model.CanonicalTime(b); ok {
			set[c] = struct{}{}
		}
	}
	return set
}
