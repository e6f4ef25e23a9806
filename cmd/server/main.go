// Package main is the entrypoint for the FinSight API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai"
	"github.com/kiranshivaraju/finsight/internal/analysis"
	"github.com/kiranshivaraju/finsight/internal/api"
	"github.com/kiranshivaraju/finsight/internal/api/handler"
	mw "github.com/kiranshivaraju/finsight/internal/api/middleware"
	"github.com/kiranshivaraju/finsight/internal/cache"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/internal/docstore"
	"github.com/kiranshivaraju/finsight/internal/insight"
	"github.com/kiranshivaraju/finsight/internal/logging"
	"github.com/kiranshivaraju/finsight/internal/metrics"
	"github.com/kiranshivaraju/finsight/internal/pdftext"
	"github.com/kiranshivaraju/finsight/internal/queue"
	"github.com/kiranshivaraju/finsight/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// components are the backends the HTTP layer is assembled from.
type components struct {
	store   store.Store
	cache   cache.Cache
	queue   queue.Queue
	docs    docstore.Store
	service *analysis.Service
	metrics *metrics.Metrics
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, syncLogs, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = syncLogs() }()
	slog.SetDefault(logger)
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and apply migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. Redis: cache, progress and queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	taskQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Queue.Name, cfg.Queue.WorkerID)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer taskQueue.Close()

	// 4. Document store
	docs, err := docstore.New(ctx, cfg.DocStore)
	if err != nil {
		return fmt.Errorf("create document store: %w", err)
	}
	slog.Info("document store ready", "backend", docs.Type())

	// 5. AI provider and the analysis pipeline
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name(), "model", aiProvider.Model())

	m := metrics.New()
	m.RegisterQueueDepth(queueDepth(taskQueue))

	extractor := insight.New(aiProvider,
		insight.WithRecorder(m),
		insight.WithCallTimeout(cfg.AI.InferenceTimeout))

	pgStore := store.NewPostgresStore(pool)
	svc := analysis.NewService(pgStore, docs, taskQueue, redisCache, pdftext.Extractor{}, extractor,
		analysis.WithProgressTTL(cfg.Queue.ProgressTTL),
		analysis.WithRecorder(m))

	// 6. Build router and start HTTP server
	router := newRouter(cfg, components{
		store:   pgStore,
		cache:   redisCache,
		queue:   taskQueue,
		docs:    docs,
		service: svc,
		metrics: m,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Queue.JobTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newRouter(cfg *config.Config, c components) http.Handler {
	maxUpload := cfg.Server.MaxUploadBytes

	return api.NewRouter(api.Dependencies{
		Auth:       mw.NewAuth(c.store),
		RateLimit:  mw.NewRateLimit(c.cache, cfg.Server.RateLimitPerMinute),
		Instrument: c.metrics.Middleware,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": c.store,
			"cache":    c.cache,
			"queue":    c.queue,
			"docstore": c.docs,
		}),
		MetricsHandler: c.metrics.Handler(),

		AnalyzeHandler:      handler.NewAnalyzeHandler(c.service, maxUpload),
		AnalyzeFastHandler:  handler.NewAnalyzeFastHandler(c.service, maxUpload),
		GetAnalysisHandler:  handler.NewGetAnalysisHandler(c.service),
		ListAnalysesHandler: handler.NewListAnalysesHandler(c.service),
		StatsHandler:        handler.NewStatsHandler(c.service),
		FinancialMetrics:    handler.NewFinancialMetricsHandler(c.service),
		DeleteAnalysis:      handler.NewDeleteAnalysisHandler(c.service),
		RebuildMetrics:      handler.NewRebuildMetricsHandler(c.service),
		CreateKeyHandler:    handler.NewCreateKeyHandler(c.store),
		ListKeysHandler:     handler.NewListKeysHandler(c.store),
		RevokeKeyHandler:    handler.NewRevokeKeyHandler(c.store),
	})
}

// queueDepth adapts the queue's pending count to a gauge callback.
func queueDepth(q queue.Queue) func() float64 {
	return func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := q.Depth(ctx)
		if err != nil {
			slog.Warn("reading queue depth", "error", err)
			return 0
		}
		return float64(n)
	}
}
