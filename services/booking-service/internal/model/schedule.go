package model

import (
	"fmt"
	"time"
)

// ScheduleType tells callers which source produced a day's windows.
type ScheduleType string

const (
	ScheduleDefault ScheduleType = "default_schedule"
	ScheduleCustom  ScheduleType = "custom_schedule"
)

// Window is a contiguous [Start, End) range in which slots may be generated.
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Minutes is End-Start; negative for inverted windows.
func (w Window) Minutes() int { return int(w.End - w.Start) }

// WeeklySchedule is the default plan for one weekday.
type WeeklySchedule struct {
	Weekday      time.Weekday `json:"weekday"`
	IsWorkingDay bool         `json:"is_working_day"`
	Windows      []Window     `json:"windows"`
}

// DayOverride replaces the weekly default for one date.
type DayOverride struct {
	Date         Date     `json:"date"`
	IsWorkingDay bool     `json:"is_working_day"`
	IsConfirmed  bool     `json:"is_confirmed"`
	Reason       string   `json:"reason,omitempty"`
	Windows      []Window `json:"windows"`
}

// ValidateWindows rejects empty, inverted or out-of-day windows.
func ValidateWindows(ws []Window) error {
	for _, w := range ws {
		if !w.Start.Valid() || !w.End.Valid() {
			return fmt.Errorf("window %s-%s is outside the day", w.Start, w.End)
		}
		if w.End <= w.Start {
			return fmt.Errorf("window %s-%s must end after it starts", w.Start, w.End)
		}
	}
	return nil
}
