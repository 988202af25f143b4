package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a time of day in whole minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts H:MM, HH:MM and HH:MM:SS. Seconds must be zero.
func ParseClock(s string) (Clock, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid time %q: seconds are not supported", s)
		}
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Valid() bool { return c >= 0 && c < minutesPerDay }

// String renders the canonical zero-padded HH:MM form.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CanonicalTime normalizes a stored or user supplied time to HH:MM.
func CanonicalTime(s string) (string, bool) {
	c, err := ParseClock(s)
	if err != nil {
		return "", false
	}
	return c.String(), true
}
