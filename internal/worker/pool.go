// Package worker drains the analysis queue with a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/finsight/internal/analysis"
	"github.com/kiranshivaraju/finsight/internal/queue"
)

const (
	defaultPollTimeout = 5 * time.Second
	errorBackoff       = time.Second
)

// Executor runs one task to completion.
type Executor interface {
	Execute(ctx context.Context, t queue.Task) error
}

// Pool runs concurrency loops of dequeue, execute, ack.
type Pool struct {
	queue       queue.Queue
	exec        Executor
	concurrency int
	jobTimeout  time.Duration
	pollTimeout time.Duration
	backoff     time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of concurrent jobs. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithJobTimeout bounds a single execution.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.jobTimeout = d }
}

// WithPollTimeout sets how long each dequeue blocks.
func WithPollTimeout(d time.Duration) Option {
	return func(p *Pool) { p.pollTimeout = d }
}

// WithErrorBackoff sets the pause after a failed dequeue or a requeued task.
func WithErrorBackoff(d time.Duration) Option {
	return func(p *Pool) { p.backoff = d }
}

// NewPool creates a new Pool.
func NewPool(q queue.Queue, exec Executor, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		exec:        exec,
		concurrency: 2,
		jobTimeout:  30 * time.Minute,
		pollTimeout: defaultPollTimeout,
		backoff:     errorBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run first returns this worker's unacknowledged tasks to the queue, then
// processes tasks until ctx is cancelled. In-flight jobs finish before Run
// returns.
func (p *Pool) Run(ctx context.Context) error {
	n, err := p.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering unacknowledged tasks: %w", err)
	}
	if n > 0 {
		slog.Info("requeued unacknowledged tasks", "count", n)
	}

	slog.Info("worker pool started", "concurrency", p.concurrency, "job_timeout", p.jobTimeout)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	slog.Info("worker pool stopped")
	return nil
}

func (p *Pool) loop(ctx context.Context, slot int) {
	log := slog.With("slot", slot)
	for ctx.Err() == nil {
		d, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, queue.ErrMalformedTask) {
				log.Warn("dropped malformed task", "error", err)
				continue
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
			continue
		}
		if d == nil {
			continue
		}
		if !p.handle(ctx, log, d) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

// handle executes d detached from ctx so a shutdown does not abort the job,
// then acknowledges it. A job that could not be claimed has not run, so its
// task goes back to pending instead; handle then reports false and the loop
// backs off before dequeueing again.
func (p *Pool) handle(ctx context.Context, log *slog.Logger, d *queue.Delivery) bool {
	base := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(base, p.jobTimeout)
	defer cancel()

	log = log.With("job_id", d.Task.JobID)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic while executing job", "panic", r)
			}
		}()
		err = p.exec.Execute(jobCtx, d.Task)
	}()

	var claimErr *analysis.ClaimError
	switch {
	case err == nil:
	case errors.As(err, &claimErr):
		log.Warn("claim failed, returning task to the queue", "error", err)
		if rerr := p.queue.Requeue(base, d); rerr != nil {
			// Still in the processing list; Recover returns it on restart.
			log.Error("requeue failed", "error", rerr)
		}
		return false
	case errors.Is(err, analysis.ErrNotClaimable):
		log.Info("skipping task for job that is no longer queued")
	default:
		log.Warn("job ended in failure", "error", err)
	}

	if err := p.queue.Ack(base, d); err != nil {
		log.Error("ack failed", "error", err)
	}
	return true
}
