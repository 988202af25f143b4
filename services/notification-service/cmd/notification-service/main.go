package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/config"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/reminders"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.ServiceName, cfg.OTel)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	notificationsRepo := storage.NewRepository(pool)
	if err := notificationsRepo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}

	sender, err := sms.New(cfg.SMSProvider, cfg.SMSWebhookURL, cfg.SMSWebhookToken, cfg.SMSTimeout)
	if err != nil {
		panic(err)
	}

	formatter := messages.NewFormatter(cfg.ClinicName)
	reminderRepo := reminders.NewRepository()
	planner := reminders.NewPlanner(cfg.Location(), cfg.ReminderLead, cfg.ReminderMaxAttempts)
	scheduler := reminders.NewScheduler(pool, reminderRepo, planner, logger)
	worker := reminders.NewWorker(reminders.NewPoolStore(pool, reminderRepo), sender, formatter, notificationsRepo, logger, reminders.WorkerConfig{
		Interval:  cfg.ReminderPollInterval,
		BatchSize: cfg.ReminderBatchSize,
		Backoff:   cfg.ReminderBackoff,
	})
	go worker.Run(ctx)

	handler := notify.NewHandler(formatter, sender, notificationsRepo, logger, notify.WithReminders(scheduler))
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: cfg.Brokers(),
		GroupID: cfg.GroupID,
		Topics:  cfg.Topics,
	}, handler.Handle)
	go eventConsumer.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", runtime.Healthz)
	mux.Handle("/readyz", runtime.Readyz(2*time.Second,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers())},
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger, "/healthz", "/readyz"),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.ServeHTTP(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
}
