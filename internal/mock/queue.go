package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/finsight/internal/queue"
)

// Queue is an in-memory queue.Queue backed by a buffered channel.
type Queue struct {
	EnqueueFunc func(ctx context.Context, t queue.Task) error
	RequeueFunc func(ctx context.Context, d *queue.Delivery) error

	ch chan queue.Task

	mu       sync.Mutex
	acked    []queue.Task
	requeued []queue.Task
}

// NewQueue returns a Queue holding at most size pending tasks.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan queue.Task, size)}
}

func (q *Queue) Enqueue(ctx context.Context, t queue.Task) error {
	if q.EnqueueFunc != nil {
		if err := q.EnqueueFunc(ctx, t); err != nil {
			return err
		}
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.ch:
		return &queue.Delivery{Task: t}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Ack(_ context.Context, d *queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, d.Task)
	return nil
}

func (q *Queue) Requeue(ctx context.Context, d *queue.Delivery) error {
	if q.RequeueFunc != nil {
		if err := q.RequeueFunc(ctx, d); err != nil {
			return err
		}
	}
	q.mu.Lock()
	q.requeued = append(q.requeued, d.Task)
	q.mu.Unlock()
	select {
	case q.ch <- d.Task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Recover(context.Context) (int, error) { return 0, nil }

func (q *Queue) Depth(context.Context) (int64, error) { return int64(len(q.ch)), nil }

func (q *Queue) Ping(context.Context) error { return nil }

// Acked returns every acknowledged task in order.
func (q *Queue) Acked() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.acked...)
}

// Requeued returns every task handed back with Requeue, in order.
func (q *Queue) Requeued() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.requeued...)
}

var _ queue.Queue = (*Queue)(nil)
