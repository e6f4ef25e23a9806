package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/finsight/internal/cache"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/lthibault/jitterbug/v2"
)

// StaleJobMessage is recorded on jobs failed by the sweep.
const StaleJobMessage = "Analysis failed: worker lost while processing"

// Sweeper fails jobs that have been processing for longer than staleAfter.
// Such jobs belong to a worker that died mid-execution.
type Sweeper struct {
	store      store.Store
	cache      cache.Cache
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewSweeper creates a new Sweeper.
func NewSweeper(st store.Store, ca cache.Cache, staleAfter, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:      st,
		cache:      ca,
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
	}
}

// Sweep runs one pass and returns the number of jobs failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.FailStaleJobs(ctx, s.now().Add(-s.staleAfter), StaleJobMessage)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.cache.ClearProgress(ctx, id); err != nil {
			slog.Warn("clearing progress of stale job", "job_id", id, "error", err)
		}
		slog.Warn("stale job failed", "job_id", id, "stale_after", s.staleAfter)
	}
	return len(ids), nil
}

// Run sweeps on a jittered ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.interval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("stale job sweep failed", "error", err)
			}
		}
	}
}
