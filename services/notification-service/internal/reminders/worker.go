package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
)

// Log persists delivery attempts.
type Log interface {
	Insert(ctx context.Context, n storage.Notification) error
}

// JobStore hands out due jobs and records what happened to each one.
type JobStore interface {
	Claim(ctx context.Context, now time.Time, limit int) (due []Job, expired int, err error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, a Attempt, lastError string) error
}

// PoolStore runs Repository against a connection pool. Claims commit before
// any message is sent.
type PoolStore struct {
	pool *db.Pool
	repo *Repository
}

func NewPoolStore(pool *db.Pool, repo *Repository) *PoolStore {
	return &PoolStore{pool: pool, repo: repo}
}

func (s *PoolStore) Claim(ctx context.Context, now time.Time, limit int) ([]Job, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, expired, err := s.repo.Claim(ctx, tx, now, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return due, expired, nil
}

func (s *PoolStore) MarkSent(ctx context.Context, id int64) error {
	return s.repo.SetStatus(ctx, s.pool, []int64{id}, StatusSent)
}

func (s *PoolStore) MarkFailed(ctx context.Context, id int64, a Attempt, lastError string) error {
	return s.repo.MarkFailed(ctx, s.pool, id, a, lastError)
}

type Worker struct {
	store     JobStore
	sender    sms.Sender
	formatter messages.Formatter
	log       Log
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(store JobStore, sender sms.Sender, formatter messages.Formatter, log Log, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Worker{
		store:     store,
		sender:    sender,
		formatter: formatter,
		log:       log,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// processBatch records each job's outcome right after its send. A job whose
// outcome cannot be written stays in sending and is not sent again.
func (w *Worker) processBatch(ctx context.Context) error {
	now := w.now()
	jobs, expired, err := w.store.Claim(ctx, now, w.batchSize)
	if err != nil {
		return err
	}
	if expired > 0 {
		w.logger.Info("reminders expired", "count", expired)
	}

	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.deliver(jobCtx, job); err != nil {
			a := NextAttempt(job, now, w.backoff)
			w.logger.Error("reminder send failed", "err", err, "appointment_id", job.AppointmentID, "attempts", a.Attempts, "status", a.Status)
			if err := w.store.MarkFailed(ctx, job.ID, a, err.Error()); err != nil {
				w.logger.Error("reminder retry not recorded", "err", err, "appointment_id", job.AppointmentID)
			}
			continue
		}
		if err := w.store.MarkSent(ctx, job.ID); err != nil {
			w.logger.Error("reminder sent but not marked", "err", err, "appointment_id", job.AppointmentID)
		}
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, job Job) error {
	body := w.formatter.Reminder(job.PatientName, job.Date, job.Time)
	n := storage.Notification{
		EventID:       "reminder:" + job.AppointmentID,
		AppointmentID: job.AppointmentID,
		Kind:          messages.KindReminder,
		Channel:       "sms",
		Recipient:     job.Recipient,
		Body:          body,
		Provider:      w.sender.ProviderID(),
		Status:        storage.StatusSent,
	}
	sendErr := w.sender.Send(ctx, job.Recipient, body)
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
	}
	if err := w.log.Insert(ctx, n); err != nil {
		w.logger.Error("failed to persist notification", "err", err, "appointment_id", job.AppointmentID)
	}
	return sendErr
}

// Attempt is the retry state written after a failed delivery.
type Attempt struct {
	Attempts  int
	Status    string
	NextRunAt time.Time
}

// NextAttempt backs off linearly and gives up after MaxAttempts.
func NextAttempt(job Job, now time.Time, backoff time.Duration) Attempt {
	a := Attempt{Attempts: job.Attempts + 1, Status: StatusPending}
	a.NextRunAt = now.Add(backoff * time.Duration(a.Attempts))
	if a.Attempts >= job.MaxAttempts {
		a.Status = StatusFailed
	}
	return a
}
