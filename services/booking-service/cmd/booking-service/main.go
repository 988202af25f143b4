package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/md-rashed-zaman/clinicbook/libs/cache"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
	}

	codec, err := canceltoken.NewCodec(cfg.CancelTokenSecret, cfg.Location())
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var (
		scheduleCache cache.Cache
		limiter       httpx.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			panic(err)
		}
		defer rdb.Close()
		scheduleCache = cache.NewRedisCache(rdb, "clinicbook:")
		limiter = httpx.NewRedisFixedWindow(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, "clinicbook:ratelimit:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else {
		// One entry per weekday.
		scheduleCache = cache.NewMemoryCache(7, cfg.ScheduleCacheTTL)
		limiter = httpx.NewFixedWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
		logger.Warn("REDIS_ADDR not set; using per-instance cache and rate limiter")
	}

	brokers := kafkax.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	outboxRepo := outbox.NewRepository()
	scheduleRepo := storage.NewScheduleRepository(pool)
	appointmentRepo := storage.NewAppointmentRepository(pool, outboxRepo)

	resolver := schedule.NewResolver(scheduleRepo,
		schedule.WithCache(scheduleCache, cfg.ScheduleCacheTTL),
		schedule.WithLogger(logger),
	)
	svc := booking.NewService(
		resolver,
		appointmentRepo,
		codec,
		cancellation.NewEnforcer(cfg.Location()),
		m,
		logger,
		booking.Config{Location: cfg.Location(), PublicBaseURL: cfg.PublicBaseURL},
	)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
		Observe:   m.OutboxPending,
	})
	go publisher.Run(ctx)

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing("", true)
	grpcServer.SetServing("clinicbook.booking", true)
	go func() {
		if err := grpcServer.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Get("/healthz", runtime.Healthz)
	r.Get("/readyz", runtime.Readyz(2*time.Second, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handlers.NewBookingHandler(svc, logger).Routes(r, httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen))

	httpHandler := httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.ServeHTTP(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
}
