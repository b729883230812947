// Package main is the draft API: guarded patient education and clinical
// summary generation over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/api/handlers"
	"github.com/drfirst/go-draftguard/internal/api/middleware"
	"github.com/drfirst/go-draftguard/internal/config"
	"github.com/drfirst/go-draftguard/internal/domain/draft"
	"github.com/drfirst/go-draftguard/internal/evidence"
	"github.com/drfirst/go-draftguard/internal/generation"
	"github.com/drfirst/go-draftguard/internal/guardrails"
	"github.com/drfirst/go-draftguard/internal/guardrails/compliance"
	"github.com/drfirst/go-draftguard/internal/guardrails/patterns"
	"github.com/drfirst/go-draftguard/internal/llm/bedrock"
	"github.com/drfirst/go-draftguard/internal/observability/metrics"
	"github.com/drfirst/go-draftguard/internal/observability/tracing"
	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
)

const (
	serviceName = "draft-api"
	version     = "0.1.0"
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

	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer shutdownTracing(tp, logger)

	m := metrics.New(nil)
	breakers := circuitbreaker.NewManager(func(name string, s circuitbreaker.State) {
		m.BreakerState(name, s.Level())
	}, logger)

	lib, err := patterns.Load(cfg.PatternsFile)
	if err != nil {
		logger.Fatal("failed to load pattern library", zap.Error(err))
	}
	evaluator := compliance.NewEvaluator(lib, compliance.DefaultConfig())
	logger.Info("pattern library loaded",
		zap.Int("rules", lib.Len()),
		zap.String("extension", cfg.PatternsFile))

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")
	repo := draft.NewRepository(pool, logger)

	checks := map[string]handlers.Check{"postgres": pool.Ping}

	var cache evidence.Cache
	if cfg.RedisURL != "" {
		rdb, err := evidence.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		cache = evidence.NewRedisCache(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("evidence cache enabled", zap.Duration("ttl", cfg.EvidenceCacheTTL))
	}

	sources := evidence.NewService(
		evidence.DefaultPlans(
			evidence.NewPubMed(cfg.PubMedURL, cfg.NCBIAPIKey, nil),
			evidence.NewClinicalTrials(cfg.ClinicalTrialsURL, nil),
			evidence.NewMyGene(cfg.MyGeneURL, nil),
		),
		cache, cfg.EvidenceCacheTTL, breakers, m, logger)

	generator, err := newGenerator(ctx, cfg, sources, breakers, logger)
	if err != nil {
		logger.Fatal("failed to create generator", zap.Error(err))
	}

	orchestrator := guardrails.NewOrchestrator(evaluator, generator, repo, m, logger)
	draftHandler := handlers.NewDraftHandler(orchestrator, repo, logger)
	healthHandler := handlers.NewHealthHandler(serviceName, version, checks, breakers)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Tracing(serviceName))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Mount("/api/v1", draftHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls are slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if len(cfg.APIKeys) == 0 {
		logger.Warn("no API keys configured; every /api/v1 request will be refused")
	}
	logger.Info("starting draft API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newGenerator returns the Bedrock-backed generator when a model is configured,
// otherwise the template generator
func newGenerator(ctx context.Context, cfg config.Config, ev *evidence.Service, breakers *circuitbreaker.Manager, logger *zap.Logger) (guardrails.Generator, error) {
	templates := generation.NewTemplateGenerator(ev)
	if cfg.ClaudeModelID == "" {
		logger.Warn("CLAUDE_MODEL_ID not set; drafting from templates")
		return templates, nil
	}

	client, err := bedrock.NewClient(ctx, bedrock.DefaultConfig(cfg.AWSRegion, cfg.ClaudeModelID), logger)
	if err != nil {
		return nil, err
	}
	breaker, err := breakers.GetOrCreate("bedrock", circuitbreaker.DefaultConfig("bedrock"))
	if err != nil {
		return nil, err
	}

	llmCfg := generation.DefaultLLMConfig()
	llmCfg.MaxTokens = cfg.LLMMaxTokens
	logger.Info("drafting with Bedrock", zap.String("model", cfg.ClaudeModelID), zap.String("region", cfg.AWSRegion))
	return generation.NewLLMGenerator(client, breaker, ev, templates, llmCfg, logger), nil
}

func shutdownTracing(tp *tracing.Provider, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}
