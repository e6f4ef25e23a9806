// Package queue hands analysis tasks from the API to the worker pool over Redis.
//
// Producers LPUSH onto <name>:pending. Each worker BLMOVEs a task into its own
// <name>:processing:<worker-id> list and removes it there once executed, so a
// task held by a worker that dies is still in Redis and is moved back to
// pending when that worker restarts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMalformedTask is returned by Dequeue for a payload that cannot be decoded.
// The payload is dropped from the processing list before returning.
var ErrMalformedTask = errors.New("malformed queue task")

// Task is the unit of work referencing a stored document.
type Task struct {
	JobID       uuid.UUID `json:"job_id"`
	DocumentKey string    `json:"document_key"`
	Filename    string    `json:"filename"`
	Query       string    `json:"query"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Delivery is a dequeued task that must be acknowledged after execution.
type Delivery struct {
	Task Task
	raw  string
}

// Queue is the task transport between the API and workers.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Requeue returns a delivery to the back of pending without executing it.
	Requeue(ctx context.Context, d *Delivery) error
	// Recover moves tasks left in this worker's processing list back to pending.
	Recover(ctx context.Context) (int, error)
	Depth(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// RedisQueue implements Queue with Redis lists.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
}

// NewRedisQueue connects to redisURL. workerID names the processing list and
// may be empty for producers that never dequeue.
func NewRedisQueue(redisURL, name, workerID string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisQueue{
		client:     redis.NewClient(opts),
		pending:    PendingKey(name),
		processing: ProcessingKey(name, workerID),
	}, nil
}

func PendingKey(name string) string {
	return name + ":pending"
}

func ProcessingKey(name, workerID string) string {
	return fmt.Sprintf("%s:processing:%s", name, workerID)
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, b).Err(); err != nil {
		return fmt.Errorf("enqueueing task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeueing task: %w", err)
	}

	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil || t.JobID == uuid.Nil {
		_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
		return nil, fmt.Errorf("%w: %q", ErrMalformedTask, truncate(raw, 200))
	}
	return &Delivery{Task: t, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("acknowledging task %s: %w", d.Task.JobID, err)
	}
	return nil
}

// Requeue moves d from this worker's processing list to the tail of pending
// in one transaction, so the task is never absent from both lists.
func (q *RedisQueue) Requeue(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.LPush(ctx, q.pending, d.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeueing task %s: %w", d.Task.JobID, err)
	}
	return nil
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recovering tasks: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pending).Result()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Queue = (*RedisQueue)(nil)
