package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// validTransitions lists every legal status change. Completed and failed are terminal.
// queued -> failed covers dispatch failures and the stale sweep.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job tracks one document-analysis request. The API returns its ID on POST /analyze;
// the client polls GET /analysis/{task_id} until status is completed or failed.
// Result is set iff Status is completed; ErrorMessage iff Status is failed.
type Job struct {
	ID             uuid.UUID       `db:"id"              json:"task_id"`
	Filename       string          `db:"filename"        json:"filename"`
	Query          string          `db:"query"           json:"query"`
	Status         JobStatus       `db:"status"          json:"status"`
	Result         *AnalysisResult `db:"result"          json:"result"`
	ErrorMessage   *string         `db:"error_message"   json:"error_message"`
	CompanyName    *string         `db:"company_name"    json:"company_name"`
	ProcessingTime *float64        `db:"processing_time" json:"processing_time"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	StartedAt      *time.Time      `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at"    json:"completed_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}

// JobStats summarises the job table.
type JobStats struct {
	Total       int    `json:"total_analyses"`
	Queued      int    `json:"queued"`
	Processing  int    `json:"processing"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	SuccessRate string `json:"success_rate"`
}

// SuccessRate formats completed/total as a percentage with one decimal, e.g. "87.5%".
func SuccessRate(completed, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(completed)/float64(total)*100)
}
