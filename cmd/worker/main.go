// Package main is the entrypoint for the FinSight analysis worker. It drains
// the task queue, fails jobs orphaned by dead workers and serves /metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai"
	"github.com/kiranshivaraju/finsight/internal/analysis"
	"github.com/kiranshivaraju/finsight/internal/cache"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/internal/docstore"
	"github.com/kiranshivaraju/finsight/internal/insight"
	"github.com/kiranshivaraju/finsight/internal/logging"
	"github.com/kiranshivaraju/finsight/internal/metrics"
	"github.com/kiranshivaraju/finsight/internal/pdftext"
	"github.com/kiranshivaraju/finsight/internal/queue"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load validates the model credential, so a misconfigured worker never
	// claims a job it cannot finish.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, syncLogs, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = syncLogs() }()
	slog.SetDefault(logger.With("worker_id", cfg.Queue.WorkerID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	taskQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Queue.Name, cfg.Queue.WorkerID)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer taskQueue.Close()

	docs, err := docstore.New(ctx, cfg.DocStore)
	if err != nil {
		return fmt.Errorf("create document store: %w", err)
	}

	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name(), "model", aiProvider.Model())

	m := metrics.New()
	m.RegisterQueueDepth(func() float64 {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := taskQueue.Depth(dctx)
		if err != nil {
			return 0
		}
		return float64(n)
	})

	pgStore := store.NewPostgresStore(pool)
	svc := analysis.NewService(pgStore, docs, taskQueue, redisCache, pdftext.Extractor{},
		insight.New(aiProvider,
			insight.WithRecorder(m),
			insight.WithCallTimeout(cfg.AI.InferenceTimeout)),
		analysis.WithProgressTTL(cfg.Queue.ProgressTTL),
		analysis.WithRecorder(m))

	workers := worker.NewPool(taskQueue, svc,
		worker.WithConcurrency(cfg.Queue.Concurrency),
		worker.WithJobTimeout(cfg.Queue.JobTimeout))
	sweeper := analysis.NewSweeper(pgStore, redisCache, cfg.Queue.StaleAfter, cfg.Queue.SweepInterval)

	slog.Info("worker starting",
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Queue.Concurrency,
		"docstore", docs.Type(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error { return metrics.NewServer(cfg.Queue.MetricsAddr, m).Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}
