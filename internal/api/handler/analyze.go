package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/finsight/internal/analysis"
	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

const (
	// multipartOverhead is the allowance for form boundaries and the query field.
	multipartOverhead = 1 << 20
	formMemory        = 32 << 20

	queuedMessage = "Analysis started. Use task_id to check progress."
	estimatedTime = "2-3 minutes"
)

// Analyzer defines the submission operations the upload handlers depend on.
type Analyzer interface {
	Submit(ctx context.Context, req analysis.SubmitRequest) (*models.Job, error)
	AnalyzeNow(ctx context.Context, req analysis.SubmitRequest) (*models.Job, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /analyze.
func NewAnalyzeHandler(svc Analyzer, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}

		job, err := svc.Submit(r.Context(), req)
		if err != nil {
			var qerr *analysis.QueueDispatchError
			switch {
			case errors.As(err, &qerr):
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
					"Analysis could not be queued", map[string]string{"task_id": qerr.JobID.String()})
			case errors.Is(err, analysis.ErrInvalidDocument):
				response.Error(w, http.StatusBadRequest, "EMPTY_FILE", "Uploaded file is empty", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, queuedResponse{
			Status:        string(job.Status),
			TaskID:        job.ID.String(),
			Message:       queuedMessage,
			EstimatedTime: estimatedTime,
		})
	}
}

// NewAnalyzeFastHandler returns an http.HandlerFunc for POST /analyze-fast.
// The analysis runs inside the request.
func NewAnalyzeFastHandler(svc Analyzer, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}

		job, err := svc.AnalyzeNow(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, analysis.ErrInvalidDocument):
				response.Error(w, http.StatusBadRequest, "EMPTY_FILE", "Uploaded file is empty", nil)
			case job != nil && job.ErrorMessage != nil:
				response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED",
					*job.ErrorMessage, map[string]string{"task_id": job.ID.String()})
			default:
				response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED",
					"Analysis failed: "+err.Error(), nil)
			}
			return
		}

		response.JSON(w, fastResponse{
			Status:         string(job.Status),
			TaskID:         job.ID.String(),
			Result:         job.Result,
			ProcessingTime: job.ProcessingTime,
		})
	}
}

// readUpload parses the multipart form and writes the error response itself
// when the upload is unusable.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (analysis.SubmitRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fileTooLarge(w, maxBytes)
			return analysis.SubmitRequest{}, false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Request must be multipart/form-data", nil)
		return analysis.SubmitRequest{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "MISSING_FILE", "A PDF must be uploaded in the file field", nil)
		return analysis.SubmitRequest{}, false
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		response.Error(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only PDF files are supported", nil)
		return analysis.SubmitRequest{}, false
	}
	if header.Size > maxBytes {
		fileTooLarge(w, maxBytes)
		return analysis.SubmitRequest{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
		return analysis.SubmitRequest{}, false
	}
	if len(data) == 0 {
		response.Error(w, http.StatusBadRequest, "EMPTY_FILE", "Uploaded file is empty", nil)
		return analysis.SubmitRequest{}, false
	}

	return analysis.SubmitRequest{
		Filename: filepath.Base(header.Filename),
		Query:    strings.TrimSpace(r.FormValue("query")),
		Data:     data,
	}, true
}

func fileTooLarge(w http.ResponseWriter, maxBytes int64) {
	response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
		"Uploaded file exceeds the size limit", map[string]int64{"max_bytes": maxBytes})
}

type queuedResponse struct {
	Status        string `json:"status"`
	TaskID        string `json:"task_id"`
	Message       string `json:"message"`
	EstimatedTime string `json:"estimated_time"`
}

type fastResponse struct {
	Status         string                 `json:"status"`
	TaskID         string                 `json:"task_id"`
	Result         *models.AnalysisResult `json:"result"`
	ProcessingTime *float64               `json:"processing_time"`
}
