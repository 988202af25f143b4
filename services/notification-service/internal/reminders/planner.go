package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/messages"
)

// Planner decides when the reminder for a confirmed appointment is due.
type Planner struct {
	loc         *time.Location
	lead        time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewPlanner(loc *time.Location, lead time.Duration, maxAttempts int) Planner {
	if loc == nil {
		loc = time.UTC
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return Planner{loc: loc, lead: lead, maxAttempts: maxAttempts, now: time.Now}
}

// Plan builds the job for m. ok is false when the reminder time has already passed.
func (p Planner) Plan(m messages.Message) (Job, bool, error) {
	startsAt, err := time.ParseInLocation("2006-01-02 15:04", m.Date+" "+m.Time, p.loc)
	if err != nil {
		return Job{}, false, fmt.Errorf("appointment start %s %s: %w", m.Date, m.Time, err)
	}
	remindAt := startsAt.Add(-p.lead)
	if !remindAt.After(p.now()) {
		return Job{}, false, nil
	}
	return Job{
		AppointmentID: m.AppointmentID,
		Recipient:     m.Recipient,
		PatientName:   m.PatientName,
		Date:          m.Date,
		Time:          m.Time,
		StartsAt:      startsAt.UTC(),
		RemindAt:      remindAt.UTC(),
		MaxAttempts:   p.maxAttempts,
	}, true, nil
}

// Scheduler stores and cancels reminders as booking events arrive.
type Scheduler struct {
	pool    *db.Pool
	repo    *Repository
	planner Planner
	logger  *slog.Logger
}

func NewScheduler(pool *db.Pool, repo *Repository, planner Planner, logger *slog.Logger) *Scheduler {
	return &Scheduler{pool: pool, repo: repo, planner: planner, logger: logger}
}

func (s *Scheduler) Schedule(ctx context.Context, m messages.Message) error {
	job, ok, err := s.planner.Plan(m)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("reminder skipped; appointment too close", "appointment_id", m.AppointmentID)
		return nil
	}
	return s.repo.Schedule(ctx, s.pool, job)
}

func (s *Scheduler) Cancel(ctx context.Context, appointmentID string) error {
	n, err := s.repo.Cancel(ctx, s.pool, appointmentID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("reminder cancelled", "appointment_id", appointmentID)
	}
	return nil
}
