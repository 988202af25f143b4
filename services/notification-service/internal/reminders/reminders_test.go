package reminders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
)

func confirmation() messages.Message {
	return messages.Message{
		AppointmentID: "a1",
		Kind:          messages.KindConfirmation,
		Recipient:     "+1",
		PatientName:   "Ana",
		Date:          "2025-06-10",
		Time:          "10:00",
	}
}

func TestPlanSchedulesLeadBeforeStart(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := NewPlanner(santiago, 24*time.Hour, 0)
	p.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	job, ok, err := p.Plan(confirmation())
	if err != nil || !ok {
		t.Fatalf("expected a job, got ok=%v err=%v", ok, err)
	}
	// 10:00 in Santiago (UTC-4 in June) is 14:00 UTC.
	if want := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC); !job.StartsAt.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, job.StartsAt)
	}
	if want := time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC); !job.RemindAt.Equal(want) {
		t.Fatalf("expected reminder %s, got %s", want, job.RemindAt)
	}
	if job.MaxAttempts != 3 || job.Recipient != "+1" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestPlanSkipsPastReminders(t *testing.T) {
	p := NewPlanner(time.UTC, 24*time.Hour, 3)
	p.now = func() time.Time { return time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC) }
	if _, ok, err := p.Plan(confirmation()); err != nil || ok {
		t.Fatalf("reminder time already passed; expected skip, got ok=%v err=%v", ok, err)
	}

	bad := confirmation()
	bad.Time = "ten"
	if _, _, err := p.Plan(bad); err == nil {
		t.Fatalf("expected error for malformed time")
	}
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := NextAttempt(Job{Attempts: 0, MaxAttempts: 3}, now, time.Minute)
	if a.Attempts != 1 || a.Status != StatusPending || !a.NextRunAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected first retry %+v", a)
	}
	a = NextAttempt(Job{Attempts: 1, MaxAttempts: 3}, now, time.Minute)
	if !a.NextRunAt.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("expected linear backoff, got %s", a.NextRunAt)
	}
	a = NextAttempt(Job{Attempts: 2, MaxAttempts: 3}, now, time.Minute)
	if a.Status != StatusFailed {
		t.Fatalf("expected give up after max attempts, got %+v", a)
	}
}

type stubSender struct{ err error }

func (s stubSender) Send(context.Context, string, string) error { return s.err }
func (s stubSender) ProviderID() string                         { return "stub" }

// fakeStore records the order of sends and outcome writes in trail.
type fakeStore struct {
	jobs       []Job
	trail      *[]string
	markErr    error
	failedWith map[int64]Attempt
}

func (s *fakeStore) Claim(context.Context, time.Time, int) ([]Job, int, error) {
	return s.jobs, 0, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error {
	*s.trail = append(*s.trail, fmt.Sprintf("sent:%d", id))
	return s.markErr
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, a Attempt, _ string) error {
	*s.trail = append(*s.trail, fmt.Sprintf("failed:%d", id))
	if s.failedWith == nil {
		s.failedWith = map[int64]Attempt{}
	}
	s.failedWith[id] = a
	return s.markErr
}

// trailSender fails for recipients in failFor and records every send.
type trailSender struct {
	trail   *[]string
	failFor map[string]bool
}

func (s trailSender) Send(_ context.Context, to, _ string) error {
	*s.trail = append(*s.trail, "send:"+to)
	if s.failFor[to] {
		return errors.New("gateway down")
	}
	return nil
}

func (s trailSender) ProviderID() string { return "trail" }

type memoryLog struct{ entries []storage.Notification }

func (l *memoryLog) Insert(_ context.Context, n storage.Notification) error {
	l.entries = append(l.entries, n)
	return nil
}

func TestDeliverLogsOutcome(t *testing.T) {
	log := &memoryLog{}
	w := NewWorker(&fakeStore{}, stubSender{err: errors.New("gateway down")}, messages.NewFormatter(""), log,
		slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{})

	err := w.deliver(context.Background(), Job{AppointmentID: "a1", Recipient: "+1", Date: "2025-06-10", Time: "10:00"})
	if err == nil {
		t.Fatalf("expected send error")
	}
	if len(log.entries) != 1 || log.entries[0].Kind != messages.KindReminder || log.entries[0].Status != storage.StatusFailed {
		t.Fatalf("unexpected log %+v", log.entries)
	}
}

func TestProcessBatchRecordsEachJobBeforeTheNext(t *testing.T) {
	var trail []string
	starts := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{trail: &trail, jobs: []Job{
		{ID: 1, AppointmentID: "a1", Recipient: "+1", StartsAt: starts, MaxAttempts: 3},
		{ID: 2, AppointmentID: "a2", Recipient: "+2", StartsAt: starts, MaxAttempts: 3},
		{ID: 3, AppointmentID: "a3", Recipient: "+3", StartsAt: starts, MaxAttempts: 3},
	}}
	sender := trailSender{trail: &trail, failFor: map[string]bool{"+2": true}}
	w := NewWorker(store, sender, messages.NewFormatter(""), &memoryLog{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Backoff: time.Minute})
	now := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []string{"send:+1", "sent:1", "send:+2", "failed:2", "send:+3", "sent:3"}
	if fmt.Sprint(trail) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, trail)
	}
	if a := store.failedWith[2]; a.Attempts != 1 || a.Status != StatusPending || !a.NextRunAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected retry state %+v", a)
	}
}

func TestProcessBatchKeepsGoingWhenOutcomeWriteFails(t *testing.T) {
	var trail []string
	starts := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{trail: &trail, markErr: errors.New("connection reset"), jobs: []Job{
		{ID: 1, AppointmentID: "a1", Recipient: "+1", StartsAt: starts, MaxAttempts: 3},
		{ID: 2, AppointmentID: "a2", Recipient: "+2", StartsAt: starts, MaxAttempts: 3},
	}}
	w := NewWorker(store, trailSender{trail: &trail}, messages.NewFormatter(""), &memoryLog{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{})

	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("a failed status write must not fail the batch: %v", err)
	}
	if len(trail) != 4 || trail[3] != "sent:2" {
		t.Fatalf("expected both jobs sent once, got %v", trail)
	}
}
