package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/analysis"
	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// JobReader defines the read and delete operations on analysis jobs.
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*analysis.JobView, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewGetAnalysisHandler returns an http.HandlerFunc for GET /analysis/{taskID}.
func NewGetAnalysisHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}

		view, err := svc.Get(r.Context(), id)
		if err != nil {
			writeJobError(w, r, err)
			return
		}
		response.JSON(w, view)
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /analyses.
func NewListAnalysesHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}

		jobs, err := svc.List(r.Context(), limit)
		if err != nil {
			slog.Error("listing analyses", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}
		response.JSON(w, map[string]any{
			"analyses": jobs,
			"total":    len(jobs),
		})
	}
}

// NewDeleteAnalysisHandler returns an http.HandlerFunc for DELETE /analysis/{taskID}.
func NewDeleteAnalysisHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeJobError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_TASK_ID", "task_id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter. Zero means absent.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a positive integer", nil)
		return 0, false
	}
	return n, true
}

func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
		return
	}
	slog.Error("job request failed", "path", r.URL.Path, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
