package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/cache"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Cache is an in-memory cache.Cache. TTLs are recorded but never expire entries.
type Cache struct {
	PingFunc        func(ctx context.Context) error
	GetProgressFunc func(ctx context.Context, jobID uuid.UUID) (*models.Progress, bool, error)
	SetProgressFunc func(ctx context.Context, jobID uuid.UUID, p models.Progress) error
	IncrFunc        func(ctx context.Context, key string) (int64, error)

	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	progress map[uuid.UUID][]models.Progress
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		values:   make(map[string][]byte),
		counters: make(map[string]int64),
		progress: make(map[uuid.UUID][]models.Progress),
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.PingFunc != nil {
		return c.PingFunc(ctx)
	}
	return nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = append([]byte(nil), value...)
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *Cache) SetProgress(ctx context.Context, jobID uuid.UUID, p models.Progress, _ time.Duration) error {
	if c.SetProgressFunc != nil {
		if err := c.SetProgressFunc(ctx, jobID, p); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[jobID] = append(c.progress[jobID], p)
	return nil
}

func (c *Cache) GetProgress(ctx context.Context, jobID uuid.UUID) (*models.Progress, bool, error) {
	if c.GetProgressFunc != nil {
		return c.GetProgressFunc(ctx, jobID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.progress[jobID]
	if len(h) == 0 {
		return nil, false, nil
	}
	p := h[len(h)-1]
	return &p, true, nil
}

func (c *Cache) ClearProgress(_ context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.progress, jobID)
	return nil
}

func (c *Cache) IncrWithExpiry(ctx context.Context, key string, _ time.Duration) (int64, error) {
	if c.IncrFunc != nil {
		return c.IncrFunc(ctx, key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// ProgressHistory returns every progress report written for the job since
// its last clear.
func (c *Cache) ProgressHistory(jobID uuid.UUID) []models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Progress(nil), c.progress[jobID]...)
}

var _ cache.Cache = (*Cache)(nil)
