// Package mock provides in-memory implementations of the storage, cache and
// queue interfaces for tests. Each type honours the contract of the real
// backend and exposes Func fields to inject failures.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Store is an in-memory store.Store. Transitions are validated exactly as the
// Postgres implementation does.
type Store struct {
	// When set, these override the default behaviour.
	PingFunc            func(ctx context.Context) error
	CreateJobFunc       func(ctx context.Context, job *models.Job) error
	UpdateJobStatusFunc func(ctx context.Context, id uuid.UUID, status models.JobStatus, u store.JobUpdate) error

	mu      sync.Mutex
	keys    map[uuid.UUID]*models.APIKey
	jobs    map[uuid.UUID]*models.Job
	metrics map[uuid.UUID]*models.FinancialMetricsRecord
	nextRow int64
	history map[uuid.UUID][]models.JobStatus
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		keys:    make(map[uuid.UUID]*models.APIKey),
		jobs:    make(map[uuid.UUID]*models.Job),
		metrics: make(map[uuid.UUID]*models.FinancialMetricsRecord),
		history: make(map[uuid.UUID][]models.JobStatus),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.PingFunc != nil {
		return s.PingFunc(ctx)
	}
	return nil
}

// --- API keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *key
	s.keys[key.ID] = &c
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Jobs ---

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if s.CreateJobFunc != nil {
		if err := s.CreateJobFunc(ctx, job); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *job
	s.jobs[job.ID] = &c
	s.history[job.ID] = []models.JobStatus{job.Status}
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (s *Store) ListRecentJobs(_ context.Context, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		c := *j
		out = append(out, &c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.jobs, id)
	delete(s.metrics, id)
	return nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) error {
	u := store.ResolveJobUpdate(opts...)
	if s.UpdateJobStatusFunc != nil {
		if err := s.UpdateJobStatusFunc(ctx, id, status, u); err != nil {
			return err
		}
	}
	if status == models.JobStatusCompleted && u.Result == nil {
		return fmt.Errorf("completing job %s: result is required", id)
	}
	if status == models.JobStatusFailed && u.ErrorMessage == nil {
		return fmt.Errorf("failing job %s: error message is required", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !models.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, status)
	}

	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now
	if status == models.JobStatusProcessing {
		j.StartedAt = &now
	}
	if status.IsTerminal() {
		j.CompletedAt = &now
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		j.ErrorMessage = &msg
	}
	if u.ProcessingTime != nil {
		pt := *u.ProcessingTime
		j.ProcessingTime = &pt
	}
	if u.Result != nil {
		r := *u.Result
		j.Result = &r
		if r.CompanyName != "" {
			name := r.CompanyName
			j.CompanyName = &name
		}
	}
	if status == models.JobStatusCompleted {
		if rec := models.NewFinancialMetricsRecord(id, u.Result, now); rec != nil {
			s.nextRow++
			rec.ID = s.nextRow
			s.metrics[id] = rec
		}
	}
	s.history[id] = append(s.history[id], status)
	return nil
}

func (s *Store) FailStaleJobs(_ context.Context, startedBefore time.Time, message string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	now := time.Now().UTC()
	for id, j := range s.jobs {
		if j.Status != models.JobStatusProcessing || j.StartedAt == nil || !j.StartedAt.Before(startedBefore) {
			continue
		}
		msg := message
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &msg
		j.CompletedAt = &now
		j.UpdatedAt = now
		s.history[id] = append(s.history[id], models.JobStatusFailed)
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) JobStats(_ context.Context) (*models.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.JobStats
	for _, j := range s.jobs {
		st.Total++
		switch j.Status {
		case models.JobStatusQueued:
			st.Queued++
		case models.JobStatusProcessing:
			st.Processing++
		case models.JobStatusCompleted:
			st.Completed++
		case models.JobStatusFailed:
			st.Failed++
		}
	}
	st.SuccessRate = models.SuccessRate(st.Completed, st.Total)
	return &st, nil
}

// --- Financial metrics ---

func (s *Store) ListFinancialMetrics(_ context.Context, filter store.MetricsFilter) ([]*models.FinancialMetricsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.FinancialMetricsRecord{}
	for _, r := range s.metrics {
		if filter.Company != "" && (r.CompanyName == nil ||
			!strings.Contains(strings.ToLower(*r.CompanyName), strings.ToLower(filter.Company))) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) RebuildFinancialMetrics(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = make(map[uuid.UUID]*models.FinancialMetricsRecord)
	for id, j := range s.jobs {
		if j.Status != models.JobStatusCompleted {
			continue
		}
		at := j.UpdatedAt
		if j.CompletedAt != nil {
			at = *j.CompletedAt
		}
		if rec := models.NewFinancialMetricsRecord(id, j.Result, at); rec != nil {
			s.nextRow++
			rec.ID = s.nextRow
			s.metrics[id] = rec
		}
	}
	return len(s.metrics), nil
}

// History returns every status the job has held, in order.
func (s *Store) History(id uuid.UUID) []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JobStatus(nil), s.history[id]...)
}

// SetJob stores job as-is, bypassing transition checks.
func (s *Store) SetJob(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *job
	s.jobs[job.ID] = &c
	s.history[job.ID] = append(s.history[job.ID], job.Status)
}

var _ store.Store = (*Store)(nil)
