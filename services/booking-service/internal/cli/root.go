// Package cli implements the clinicctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/cache"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

// Globals are flags shared by every command.
type Globals struct {
	DatabaseURL   string `help:"Postgres connection string." env:"DATABASE_URL"`
	RedisAddr     string `help:"Redis address. When set, cached weekly schedules are cleared after changes." env:"REDIS_ADDR"`
	RedisPassword string `help:"Redis password." env:"REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database number; must match the service." env:"REDIS_DB" default:"0"`
	Timezone      string `help:"Clinic timezone." env:"CLINIC_TIMEZONE" default:"UTC"`
}

// Context is passed to every command's Run method.
type Context struct {
	context.Context
	Out     io.Writer
	Globals *Globals
	Now     func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Globals.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func (c *Context) openPool() (*db.Pool, error) {
	if strings.TrimSpace(c.Globals.DatabaseURL) == "" {
		return nil, errors.New("--database-url or DATABASE_URL is required")
	}
	return db.Open(c, c.Globals.DatabaseURL, db.Options{MaxConns: 2})
}

// invalidateWeekly clears the shared schedule cache for day when Redis is configured.
func (c *Context) invalidateWeekly(repo *storage.ScheduleRepository, day time.Weekday) error {
	if c.Globals.RedisAddr == "" {
		return nil
	}
	rdb, err := cache.OpenRedis(c, c.Globals.RedisAddr, c.Globals.RedisPassword, c.Globals.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	resolver := schedule.NewResolver(repo, schedule.WithCache(cache.NewRedisCache(rdb, "clinicbook:"), 0))
	return resolver.Invalidate(c, day)
}

func (c *Context) printJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "0": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "1": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "2": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "3": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "4": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "5": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "6": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// parseWindows reads HH:MM-HH:MM ranges.
func parseWindows(raw []string) ([]model.Window, error) {
	out := make([]model.Window, 0, len(raw))
	for _, r := range raw {
		start, end, ok := strings.Cut(r, "-")
		if !ok {
			return nil, fmt.Errorf("window %q: want HH:MM-HH:MM", r)
		}
		s, err := model.ParseClock(start)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", r, err)
		}
		e, err := model.ParseClock(end)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", r, err)
		}
		out = append(out, model.Window{Start: s, End: e})
	}
	if err := model.ValidateWindows(out); err != nil {
		return nil, err
	}
	return out, nil
}
