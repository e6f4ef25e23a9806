package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error
	FailStaleJobs(ctx context.Context, startedBefore time.Time, message string) ([]uuid.UUID, error)
	JobStats(ctx context.Context) (*models.JobStats, error)

	ListFinancialMetrics(ctx context.Context, filter MetricsFilter) ([]*models.FinancialMetricsRecord, error)
	RebuildFinancialMetrics(ctx context.Context) (int, error)
}

// MetricsFilter narrows an analytics read. An empty Company matches every row.
type MetricsFilter struct {
	Company string
	Limit   int
}

// JobUpdate is the resolved form of a set of JobUpdateOptions.
type JobUpdate struct {
	ErrorMessage   *string
	Result         *models.AnalysisResult
	ProcessingTime *float64
}

type JobUpdateOption func(*JobUpdate)

// ResolveJobUpdate applies opts to an empty JobUpdate.
func ResolveJobUpdate(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorMessage = &msg
	}
}

// WithResult attaches the analysis payload written on completion.
func WithResult(r *models.AnalysisResult) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Result = r
	}
}

// WithProcessingTime records the wall-clock duration in seconds.
func WithProcessingTime(seconds float64) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ProcessingTime = &seconds
	}
}
