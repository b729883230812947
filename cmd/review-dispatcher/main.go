// Package main consumes review requests and places drafts on the clinician
// review queue.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/api/handlers"
	"github.com/drfirst/go-draftguard/internal/config"
	"github.com/drfirst/go-draftguard/internal/infrastructure/redpanda"
	"github.com/drfirst/go-draftguard/internal/observability/metrics"
	"github.com/drfirst/go-draftguard/internal/observability/tracing"
	"github.com/drfirst/go-draftguard/internal/review"
	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
	"github.com/drfirst/go-draftguard/pkg/idempotency"
	"github.com/drfirst/go-draftguard/pkg/workerpool"
)

const (
	version     = "0.1.0"
	lagInterval = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := tracing.DefaultConfig(review.HandlerName)
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	m := metrics.New(nil)
	breakers := circuitbreaker.NewManager(func(name string, s circuitbreaker.State) {
		m.BreakerState(name, s.Level())
	}, logger)
	breaker, err := breakers.GetOrCreate("review-queue", circuitbreaker.DefaultConfig("review-queue"))
	if err != nil {
		logger.Fatal("breaker creation failed", zap.Error(err))
	}

	inbox := idempotency.NewInbox(pool, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	wcfg := workerpool.DefaultConfig()
	wcfg.Workers = cfg.ReviewWorkers
	workers := workerpool.New(wcfg, logger)
	workers.Start()
	defer workers.Stop()

	dispatcher := review.NewDispatcher(review.NewPGQueue(pool), inbox, workers, breaker, m, logger)

	ccfg := redpanda.DefaultConsumerConfig()
	ccfg.Brokers = cfg.KafkaBrokers
	ccfg.GroupID = review.HandlerName
	consumer, err := redpanda.NewConsumer(ccfg, dispatcher.Handle, m, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()
	logger.Info("review dispatcher started",
		zap.Strings("topics", ccfg.Topics),
		zap.Int("workers", wcfg.Workers))

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	defer admin.Close()
	go reportLag(ctx, admin, ccfg.GroupID, m, logger)

	health := handlers.NewHealthHandler(review.HandlerName, version, map[string]handlers.Check{
		"postgres": pool.Ping,
		"redpanda": consumer.Ping,
	}, breakers)
	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", metrics.Handler())

	opsServer := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	consumer.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = opsServer.Shutdown(shutdownCtx)
}

func reportLag(ctx context.Context, admin *redpanda.Admin, group string, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(lagInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lag, err := admin.GroupLag(ctx, group)
			if err != nil {
				logger.Warn("failed to read consumer lag", zap.Error(err))
				continue
			}
			m.GroupLag(group, lag)
			logger.Debug("review consumer lag", zap.Int64("lag", lag))
		}
	}
}
