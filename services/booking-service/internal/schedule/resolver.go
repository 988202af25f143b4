package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/cache"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("booking-service/schedule")

// Resolution is the bookability verdict for one date.
type Resolution struct {
	Date       model.Date
	Type       model.ScheduleType
	IsBookable bool
	Reason     string
	Windows    []model.Window

	denial error
}

// Err maps an unbookable resolution onto the error taxonomy; nil when bookable.
func (r Resolution) Err() error {
	if r.IsBookable {
		return nil
	}
	if r.denial != nil {
		return r.denial
	}
	return &model.NotBookableError{Reason: r.Reason}
}

// Resolver picks the windows that apply to a date. Day overrides always win;
// the weekly default is only read when no override exists.
type Resolver struct {
	store  ports.ScheduleStore
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Resolver)

// WithCache keeps weekly defaults in c for ttl. Overrides are never cached.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.ttl = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(store ports.ScheduleStore, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, date model.Date) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "schedule.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.date", date.String()))

	ov, found, err := r.store.DayOverride(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load override")
		return Resolution{}, fmt.Errorf("load day override %s: %w", date, err)
	}
	if found {
		res := fromOverride(date, ov)
		span.SetAttributes(attribute.String("clinic.schedule_type", string(res.Type)), attribute.Bool("clinic.bookable", res.IsBookable))
		return res, nil
	}

	ws, found, err := r.weekly(ctx, date.Weekday())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load weekly schedule")
		return Resolution{}, fmt.Errorf("load weekly schedule %s: %w", date.Weekday(), err)
	}
	res := fromWeekly(date, ws, found)
	span.SetAttributes(attribute.String("clinic.schedule_type", string(res.Type)), attribute.Bool("clinic.bookable", res.IsBookable))
	return res, nil
}

func fromOverride(date model.Date, ov model.DayOverride) Resolution {
	res := Resolution{Date: date, Type: model.ScheduleCustom}
	switch {
	case !ov.IsWorkingDay:
		res.Reason = model.ReasonNotWorkingDay
	case ov.IsConfirmed:
		res.Reason = model.ReasonMarkedUnavailable
	case len(ov.Windows) == 0:
		res.Reason = model.ReasonNoOverrideWindows
		res.denial = model.ErrNoScheduleConfigured
	default:
		res.IsBookable = true
		res.Windows = ov.Windows
	}
	return res
}

func fromWeekly(date model.Date, ws model.WeeklySchedule, found bool) Resolution {
	res := Resolution{Date: date, Type: model.ScheduleDefault}
	switch {
	case found && !ws.IsWorkingDay:
		res.Reason = model.ReasonNotWorkingDay
	case !found || len(ws.Windows) == 0:
		res.Reason = model.ReasonNoSchedule
		res.denial = model.ErrNoScheduleConfigured
	default:
		res.IsBookable = true
		res.Windows = ws.Windows
	}
	return res
}

type cachedWeekly struct {
	Found    bool                 `json:"found"`
	Schedule model.WeeklySchedule `json:"schedule"`
}

func (r *Resolver) weekly(ctx context.Context, day time.Weekday) (model.WeeklySchedule, bool, error) {
	if r.cache == nil {
		return r.store.WeeklySchedule(ctx, day)
	}

	key := weeklyKey(day)
	if raw, err := r.cache.Get(ctx, key); err == nil {
		var cw cachedWeekly
		if err := json.Unmarshal(raw, &cw); err == nil {
			return cw.Schedule, cw.Found, nil
		}
		r.logger.Warn("discarding corrupt schedule cache entry", "key", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("schedule cache read failed", "key", key, "err", err)
	}

	ws, found, err := r.store.WeeklySchedule(ctx, day)
	if err != nil {
		return model.WeeklySchedule{}, false, err
	}
	if raw, err := json.Marshal(cachedWeekly{Found: found, Schedule: ws}); err == nil {
		if err := r.cache.Set(ctx, key, raw, r.ttl); err != nil {
			r.logger.Warn("schedule cache write failed", "key", key, "err", err)
		}
	}
	return ws, found, nil
}

// Invalidate drops the cached weekly default for day.
func (r *Resolver) Invalidate(ctx context.Context, day time.Weekday) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, weeklyKey(day))
}

func weeklyKey(day time.Weekday) string {
	return "schedule:weekly:" + strconv.Itoa(int(day))
}
