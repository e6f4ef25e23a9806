// Package analysis runs the document-analysis pipeline: submission, queued
// execution, progress reporting and result persistence.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/cache"
	"github.com/kiranshivaraju/finsight/internal/docstore"
	"github.com/kiranshivaraju/finsight/internal/pdftext"
	"github.com/kiranshivaraju/finsight/internal/queue"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// DefaultQuery is used when a submission carries no query.
const DefaultQuery = "Analyze this financial document for investment insights"

const (
	defaultListLimit = 10
	maxListLimit     = 100
	statsTTL         = 15 * time.Second
)

// Queue status values reported for non-terminal jobs.
const (
	QueueStatusPending  = "PENDING"
	QueueStatusProgress = "PROGRESS"
)

var (
	// ErrMissingInput means the stored document vanished before execution.
	ErrMissingInput = errors.New("document missing")
	// ErrInvalidDocument is returned by Submit for an empty upload.
	ErrInvalidDocument = errors.New("document is empty")
	// ErrNotClaimable means the job was not queued when a worker tried to
	// claim it. The task is a redelivery and is dropped.
	ErrNotClaimable = errors.New("job is not queued")
)

// ClaimError means the queued-to-processing update failed for a reason other
// than the job's state, such as a lost database connection. The job is still
// queued and nothing has run, so the task must be delivered again.
type ClaimError struct {
	JobID uuid.UUID
	Err   error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claiming job %s: %v", e.JobID, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// QueueDispatchError is returned by Submit when the task could not be handed
// to the queue. The job has already been marked failed.
type QueueDispatchError struct {
	JobID uuid.UUID
	Err   error
}

func (e *QueueDispatchError) Error() string {
	return fmt.Sprintf("dispatching job %s: %v", e.JobID, e.Err)
}

func (e *QueueDispatchError) Unwrap() error { return e.Err }

// TextExtractor turns document bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (*pdftext.Document, error)
}

// InsightExtractor derives an analysis result from document text. It never fails.
type InsightExtractor interface {
	Analyze(ctx context.Context, text, filename, query string) models.AnalysisResult
}

// JobRecorder observes finished executions.
type JobRecorder interface {
	ObserveJob(status models.JobStatus, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveJob(models.JobStatus, time.Duration) {}

// SubmitRequest is an uploaded document plus the user's question.
type SubmitRequest struct {
	Filename string
	Query    string
	Data     []byte
}

// JobView is a job with its live progress, present only while non-terminal.
type JobView struct {
	*models.Job
	QueueStatus string           `json:"queue_status,omitempty"`
	Progress    *models.Progress `json:"progress,omitempty"`
}

// Service orchestrates the pipeline over its injected dependencies.
type Service struct {
	store       store.Store
	docs        docstore.Store
	queue       queue.Queue
	cache       cache.Cache
	text        TextExtractor
	insights    InsightExtractor
	recorder    JobRecorder
	progressTTL time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithProgressTTL sets how long a progress record outlives its last update.
func WithProgressTTL(d time.Duration) Option {
	return func(s *Service) { s.progressTTL = d }
}

// WithRecorder sets the observer notified after each execution.
func WithRecorder(r JobRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(st store.Store, docs docstore.Store, q queue.Queue, ca cache.Cache,
	text TextExtractor, insights InsightExtractor, opts ...Option) *Service {
	s := &Service{
		store:       st,
		docs:        docs,
		queue:       q,
		cache:       ca,
		text:        text,
		insights:    insights,
		recorder:    noopRecorder{},
		progressTTL: time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores the document, records a queued job and enqueues it. It
// returns as soon as the task is on the queue.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	job, err := s.register(ctx, req)
	if err != nil {
		return nil, err
	}

	task := queue.Task{
		JobID:       job.ID,
		DocumentKey: documentKey(job.ID),
		Filename:    job.Filename,
		Query:       job.Query,
		EnqueuedAt:  s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		bg := context.WithoutCancel(ctx)
		if uerr := s.store.UpdateJobStatus(bg, job.ID, models.JobStatusFailed,
			store.WithErrorMessage(failureMessage(err))); uerr != nil {
			slog.Error("marking undispatched job failed", "job_id", job.ID, "error", uerr)
		}
		s.deleteDocument(bg, task.DocumentKey)
		return nil, &QueueDispatchError{JobID: job.ID, Err: err}
	}

	slog.Info("analysis queued", "job_id", job.ID, "filename", job.Filename)
	return job, nil
}

// AnalyzeNow registers the job and runs the same execution routine inline.
// The returned job is the persisted record after execution, failed or not.
// There is no queue to redeliver an unclaimed job, so a claim failure marks
// it failed here.
func (s *Service) AnalyzeNow(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	job, err := s.register(ctx, req)
	if err != nil {
		return nil, err
	}

	task := queue.Task{
		JobID:       job.ID,
		DocumentKey: documentKey(job.ID),
		Filename:    job.Filename,
		Query:       job.Query,
		EnqueuedAt:  job.CreatedAt,
	}
	execErr := s.Execute(ctx, task)

	var claimErr *ClaimError
	if errors.As(execErr, &claimErr) {
		bg := context.WithoutCancel(ctx)
		if uerr := s.store.UpdateJobStatus(bg, job.ID, models.JobStatusFailed,
			store.WithErrorMessage(failureMessage(execErr))); uerr != nil {
			slog.Error("marking unclaimed job failed", "job_id", job.ID, "error", uerr)
			execErr = errors.Join(execErr, uerr)
		}
		s.deleteDocument(bg, task.DocumentKey)
	}

	final, err := s.store.GetJob(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, errors.Join(execErr, fmt.Errorf("reading job after execution: %w", err))
	}
	return final, execErr
}

func (s *Service) register(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if len(req.Data) == 0 {
		return nil, ErrInvalidDocument
	}
	query := req.Query
	if query == "" {
		query = DefaultQuery
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Filename:  req.Filename,
		Query:     query,
		Status:    models.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	key := documentKey(job.ID)
	if err := s.docs.Put(ctx, key, req.Data); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.deleteDocument(context.WithoutCancel(ctx), key)
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return job, nil
}

// Execute runs one job to a terminal state. It claims the job first; a job
// that is no longer queued yields ErrNotClaimable and is left untouched. On
// any later error the job is marked failed and the error returned. The
// stored document is deleted once the job is claimed, whatever the outcome.
func (s *Service) Execute(ctx context.Context, t queue.Task) error {
	if err := s.store.UpdateJobStatus(ctx, t.JobID, models.JobStatusProcessing); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s: %v", ErrNotClaimable, t.JobID, err)
		}
		return &ClaimError{JobID: t.JobID, Err: err}
	}

	start := s.now()
	log := slog.With("job_id", t.JobID, "filename", t.Filename)
	log.Info("analysis started")

	defer s.deleteDocument(context.WithoutCancel(ctx), t.DocumentKey)

	result, err := s.pipeline(ctx, t)
	elapsed := s.now().Sub(start)
	seconds := roundSeconds(elapsed)

	if err == nil {
		s.setProgress(ctx, t.JobID, 80, "Saving results...")
		err = s.store.UpdateJobStatus(ctx, t.JobID, models.JobStatusCompleted,
			store.WithResult(result), store.WithProcessingTime(seconds))
		if err != nil {
			err = fmt.Errorf("saving result: %w", err)
		}
	}

	if err != nil {
		bg := context.WithoutCancel(ctx)
		if uerr := s.store.UpdateJobStatus(bg, t.JobID, models.JobStatusFailed,
			store.WithErrorMessage(failureMessage(err)), store.WithProcessingTime(seconds)); uerr != nil {
			log.Error("recording job failure", "error", uerr)
			err = errors.Join(err, uerr)
		}
		s.clearProgress(bg, t.JobID)
		s.recorder.ObserveJob(models.JobStatusFailed, elapsed)
		log.Error("analysis failed", "error", err, "processing_time", seconds)
		return err
	}

	s.setProgress(ctx, t.JobID, 100, "Analysis completed!")
	s.recorder.ObserveJob(models.JobStatusCompleted, elapsed)
	log.Info("analysis completed", "company", result.CompanyName, "processing_time", seconds)
	return nil
}

func (s *Service) pipeline(ctx context.Context, t queue.Task) (*models.AnalysisResult, error) {
	s.setProgress(ctx, t.JobID, 20, "Reading document...")

	data, err := s.docs.Get(ctx, t.DocumentKey)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, t.DocumentKey)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	doc, err := s.text.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	s.setProgress(ctx, t.JobID, 40, "Analyzing with AI...")
	result := s.insights.Analyze(ctx, doc.Text, t.Filename, t.Query)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}
	return &result, nil
}

// Get returns the job with live progress while it is queued or processing.
// A progress read failure is logged and the progress omitted.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*JobView, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: job}
	if job.Status.IsTerminal() {
		return view, nil
	}

	p, ok, err := s.cache.GetProgress(ctx, id)
	switch {
	case err != nil:
		slog.Warn("reading job progress", "job_id", id, "error", err)
	case ok:
		view.QueueStatus = QueueStatusProgress
		view.Progress = p
	default:
		view.QueueStatus = QueueStatusPending
	}
	return view, nil
}

// List returns the most recent jobs, newest first. limit is clamped to [1, 100]
// and defaults to 10.
func (s *Service) List(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListRecentJobs(ctx, limit)
}

// Delete removes a job, its analytics row, its progress record and any
// document still held for it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	s.clearProgress(ctx, id)
	s.deleteDocument(ctx, documentKey(id))
	if err := s.cache.Delete(ctx, cache.StatsKey()); err != nil {
		slog.Warn("invalidating stats cache", "error", err)
	}
	slog.Info("analysis deleted", "job_id", id)
	return nil
}

// Stats returns job counts, served from a short-lived cache entry when present.
func (s *Service) Stats(ctx context.Context) (*models.JobStats, error) {
	if b, ok, err := s.cache.Get(ctx, cache.StatsKey()); err != nil {
		slog.Warn("reading stats cache", "error", err)
	} else if ok {
		var st models.JobStats
		if err := json.Unmarshal(b, &st); err == nil {
			return &st, nil
		}
	}

	st, err := s.store.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, cache.StatsKey(), b, statsTTL); err != nil {
			slog.Warn("writing stats cache", "error", err)
		}
	}
	return st, nil
}

// FinancialMetrics reads the analytics table.
func (s *Service) FinancialMetrics(ctx context.Context, filter store.MetricsFilter) ([]*models.FinancialMetricsRecord, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.store.ListFinancialMetrics(ctx, filter)
}

// RebuildFinancialMetrics regenerates the analytics table from stored results.
func (s *Service) RebuildFinancialMetrics(ctx context.Context) (int, error) {
	n, err := s.store.RebuildFinancialMetrics(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("financial metrics rebuilt", "rows", n)
	return n, nil
}

func (s *Service) setProgress(ctx context.Context, id uuid.UUID, current int, status string) {
	p := models.Progress{Current: current, Total: 100, Status: status}
	if err := s.cache.SetProgress(ctx, id, p, s.progressTTL); err != nil {
		slog.Warn("writing job progress", "job_id", id, "error", err)
	}
}

func (s *Service) clearProgress(ctx context.Context, id uuid.UUID) {
	if err := s.cache.ClearProgress(ctx, id); err != nil {
		slog.Warn("clearing job progress", "job_id", id, "error", err)
	}
}

func (s *Service) deleteDocument(ctx context.Context, key string) {
	if err := s.docs.Delete(ctx, key); err != nil {
		slog.Warn("deleting document", "key", key, "error", err)
	}
}

func documentKey(id uuid.UUID) string {
	return id.String()
}

func failureMessage(err error) string {
	return "Analysis failed: " + err.Error()
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
