package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func window(t *testing.T, start, end string) model.Window {
	t.Helper()
	s, err := model.ParseClock(start)
	if err != nil {
		t.Fatalf("parse %s: %v", start, err)
	}
	e, err := model.ParseClock(end)
	if err != nil {
		t.Fatalf("parse %s: %v", end, err)
	}
	return model.Window{Start: s, End: e}
}

func TestGenerateSlots_MorningWindow(t *testing.T) {
	got := GenerateSlots(window(t, "09:00", "13:00"), IntervalMinutes, nil)
	want := []string{"09:00", "09:20", "09:40", "10:00", "10:20", "10:40", "11:00", "11:20", "11:40", "12:00", "12:20", "12:40"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_ExcludesBooked(t *testing.T) {
	got := GenerateSlots(window(t, "09:00", "13:00"), IntervalMinutes, []string{"10:00", "12:40"})
	if len(got) != 10 {
		t.Fatalf("expected 10 slots, got %d", len(got))
	}
	for _, s := range got {
		if s == "10:00" || s == "12:40" {
			t.Fatalf("booked time %s must not be offered", s)
		}
	}
}

func TestGenerateSlots_BookedTimesAreCanonicalized(t *testing.T) {
	got := GenerateSlots(window(t, "09:00", "10:00"), IntervalMinutes, []string{"9:00", "09:20:00", "garbage"})
	if !reflect.DeepEqual(got, []string{"09:40"}) {
		t.Fatalf("expected only 09:40, got %v", got)
	}
}

func TestGenerateSlots_EdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       []string
	}{
		{"empty window", "09:00", "09:00", nil},
		{"inverted window", "13:00", "09:00", nil},
		{"shorter than interval", "09:00", "09:19", nil},
		{"exactly one interval", "09:00", "09:20", []string{"09:00"}},
		{"partial tail dropped", "09:00", "09:50", []string{"09:00", "09:20"}},
		{"odd start", "08:05", "08:45", []string{"08:05", "08:25"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlots(window(t, tt.start, tt.end), IntervalMinutes, nil)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGenerateSlots_CountFormula(t *testing.T) {
	for start := 0; start < 24*60; start += 35 {
		for end := start; end < 24*60; end += 17 {
			w := model.Window{Start: model.Clock(start), End: model.Clock(end)}
			total := end - start
			want := 0
			if total >= IntervalMinutes {
				want = (total-IntervalMinutes)/IntervalMinutes + 1
			}
			if got := len(GenerateSlots(w, IntervalMinutes, nil)); got != want {
				t.Fatalf("window %s-%s: expected %d slots, got %d", w.Start, w.End, want, got)
			}
		}
	}
}

func TestGenerateSlots_RejectsNonPositiveInterval(t *testing.T) {
	if got := GenerateSlots(window(t, "09:00", "10:00"), 0, nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestExpandWindows_ConcatenatesSortedAndDeduped(t *testing.T) {
	windows := []model.Window{
		window(t, "14:00", "15:00"),
		window(t, "09:00", "10:00"),
		window(t, "09:40", "10:20"),
	}
	got := ExpandWindows(windows, IntervalMinutes, []string{"14:20"})
	want := []string{"09:00", "09:20", "09:40", "10:00", "14:00", "14:40"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpandWindows_NoWindowsIsEmptyNotNil(t *testing.T) {
	got := ExpandWindows(nil, IntervalMinutes, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestDropPast_SkipsStartedSlots(t *testing.T) {
	loc := time.UTC
	date, _ := model.ParseDate("2026-01-28")
	slots := []string{"09:00", "09:20", "09:40", "10:00"}
	now := time.Date(2026, 1, 28, 9, 20, 0, 0, loc)

	got := DropPast(slots, date, now, loc)
	if !reflect.DeepEqual(got, []string{"09:40", "10:00"}) {
		t.Fatalf("expected 09:40 and 10:00, got %v", got)
	}

	tomorrow := DropPast(slots, date.AddDays(1), now, loc)
	if len(tomorrow) != len(slots) {
		t.Fatalf("future day must keep every slot, got %v", tomorrow)
	}
}

func TestContains(t *testing.T) {
	slots := []string{"09:00", "09:20"}
	if !Contains(slots, model.NewClock(9, 20)) {
		t.Fatalf("expected 09:20 to be present")
	}
	if Contains(slots, model.NewClock(9, 40)) {
		t.Fatalf("09:40 must not be present")
	}
}
