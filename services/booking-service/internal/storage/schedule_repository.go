package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports"
)

type ScheduleRepository struct {
	pool *db.Pool
}

var _ ports.ScheduleStore = (*ScheduleRepository)(nil)

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) DayOverride(ctx context.Context, date model.Date) (model.DayOverride, bool, error) {
	ov := model.DayOverride{Date: date}
	err := r.pool.QueryRow(ctx, `
		SELECT is_working_day, is_confirmed, COALESCE(reason, '')
		FROM day_overrides
		WHERE day = $1::date
	`, date.String()).Scan(&ov.IsWorkingDay, &ov.IsConfirmed, &ov.Reason)
	if db.IsNotFound(err) {
		return model.DayOverride{}, false, nil
	}
	if err != nil {
		return model.DayOverride{}, false, err
	}

	ov.Windows, err = windows(ctx, r.pool, `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM day_override_windows
		WHERE day = $1::date
		ORDER BY start_time
	`, date.String())
	if err != nil {
		return model.DayOverride{}, false, err
	}
	return ov, true, nil
}

func (r *ScheduleRepository) WeeklySchedule(ctx context.Context, weekday time.Weekday) (model.WeeklySchedule, bool, error) {
	ws := model.WeeklySchedule{Weekday: weekday}
	err := r.pool.QueryRow(ctx, `
		SELECT is_working_day FROM weekly_schedule WHERE weekday = $1
	`, int(weekday)).Scan(&ws.IsWorkingDay)
	if db.IsNotFound(err) {
		return model.WeeklySchedule{}, false, nil
	}
	if err != nil {
		return model.WeeklySchedule{}, false, err
	}

	ws.Windows, err = windows(ctx, r.pool, `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM default_slot_windows
		WHERE weekday = $1
		ORDER BY start_time
	`, int(weekday))
	if err != nil {
		return model.WeeklySchedule{}, false, err
	}
	return ws, true, nil
}

// SetWeekly replaces the default plan for ws.Weekday, windows included.
func (r *ScheduleRepository) SetWeekly(ctx context.Context, ws model.WeeklySchedule) error {
	if err := model.ValidateWindows(ws.Windows); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_schedule (weekday, is_working_day)
			VALUES ($1, $2)
			ON CONFLICT (weekday) DO UPDATE
			SET is_working_day = EXCLUDED.is_working_day,
				updated_at = now()
		`, int(ws.Weekday), ws.IsWorkingDay)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM default_slot_windows WHERE weekday = $1`, int(ws.Weekday)); err != nil {
			return err
		}
		for _, w := range ws.Windows {
			_, err := tx.Exec(ctx, `
				INSERT INTO default_slot_windows (weekday, start_time, end_time)
				VALUES ($1, $2::time, $3::time)
			`, int(ws.Weekday), w.Start.String(), w.End.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetOverride replaces any override stored for ov.Date.
func (r *ScheduleRepository) SetOverride(ctx context.Context, ov model.DayOverride) error {
	if ov.Date.IsZero() {
		return fmt.Errorf("override date is required")
	}
	if err := model.ValidateWindows(ov.Windows); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO day_overrides (day, is_working_day, is_confirmed, reason)
			VALUES ($1::date, $2, $3, NULLIF($4, ''))
			ON CONFLICT (day) DO UPDATE
			SET is_working_day = EXCLUDED.is_working_day,
				is_confirmed = EXCLUDED.is_confirmed,
				reason = EXCLUDED.reason,
				updated_at = now()
		`, ov.Date.String(), ov.IsWorkingDay, ov.IsConfirmed, ov.Reason)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM day_override_windows WHERE day = $1::date`, ov.Date.String()); err != nil {
			return err
		}
		for _, w := range ov.Windows {
			_, err := tx.Exec(ctx, `
				INSERT INTO day_override_windows (day, start_time, end_time)
				VALUES ($1::date, $2::time, $3::time)
			`, ov.Date.String(), w.Start.String(), w.End.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearOverride removes the override for date. It reports whether one existed.
func (r *ScheduleRepository) ClearOverride(ctx context.Context, date model.Date) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM day_overrides WHERE day = $1::date`, date.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduleRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func windows(ctx context.Context, q db.Querier, sql string, arg any) ([]model.Window, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Window{}
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		w, err := parseWindow(start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func parseWindow(start, end string) (model.Window, error) {
	s, err := model.ParseClock(start)
	if err != nil {
		return model.Window{}, err
	}
	e, err := model.ParseClock(end)
	if err != nil {
		return model.Window{}, err
	}
	return model.Window{Start: s, End: e}, nil
}
