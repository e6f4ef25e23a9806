package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/pkg/client"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func TestSubmit_SendsMultipart(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer fsk_secret", r.Header.Get("Authorization"))

		f, h, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		body, _ := io.ReadAll(f)
		assert.Equal(t, "acme.pdf", h.Filename)
		assert.Equal(t, "%PDF", string(body))
		assert.Equal(t, "Buy?", r.FormValue("query"))

		writeData(w, http.StatusAccepted, map[string]any{
			"status": "queued", "task_id": id, "message": "started", "estimated_time": "2-3 minutes",
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL+"/", "fsk_secret")
	q, err := c.Submit(context.Background(), "acme.pdf", strings.NewReader("%PDF"), "Buy?")
	require.NoError(t, err)
	assert.Equal(t, id, q.TaskID)
	assert.Equal(t, "queued", q.Status)
}

func TestAnalyzeFast_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze-fast", r.URL.Path)
		writeData(w, http.StatusOK, map[string]any{
			"status": "completed", "task_id": uuid.New(), "processing_time": 3.5,
			"result": map[string]any{"company_name": "Acme Corp"},
		})
	}))
	defer srv.Close()

	res, err := client.New(srv.URL, "k").AnalyzeFast(context.Background(), "a.pdf", strings.NewReader("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", res.Result.CompanyName)
	require.NotNil(t, res.ProcessingTime)
	assert.Equal(t, 3.5, *res.ProcessingTime)
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only PDF files are supported")
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, "k").Submit(context.Background(), "a.txt", strings.NewReader("x"), "")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_FILE_TYPE", apiErr.Code)
	assert.False(t, client.IsNotFound(err))
}

func TestListStatsDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/analyses":
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			writeData(w, http.StatusOK, map[string]any{
				"analyses": []map[string]any{{"task_id": uuid.New(), "status": "completed"}},
				"total":    1,
			})
		case r.URL.Path == "/stats":
			writeData(w, http.StatusOK, map[string]any{"total_analyses": 2, "success_rate": "50.0%"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := client.New(srv.URL, "k")
	ctx := context.Background()

	jobs, err := c.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, "50.0%", st.SuccessRate)

	assert.NoError(t, c.Delete(ctx, uuid.New()))
}

// pollServer reports the job as processing for the first n polls.
func pollServer(t *testing.T, n int32, final models.JobStatus) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := calls.Add(1)
		if c <= n {
			writeData(w, http.StatusOK, map[string]any{
				"task_id": uuid.New(), "status": "processing", "queue_status": "PROGRESS",
				"progress": map[string]any{"current": 40, "total": 100, "status": "Analyzing with AI..."},
			})
			return
		}
		writeData(w, http.StatusOK, map[string]any{"task_id": uuid.New(), "status": final})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestWaitForResult_Completes(t *testing.T) {
	srv, calls := pollServer(t, 2, models.JobStatusCompleted)
	var seen []int
	c := client.New(srv.URL, "k",
		client.WithPolling(time.Millisecond, 10),
		client.WithPollObserver(func(a *client.Analysis) { seen = append(seen, a.Progress.Current) }))

	a, err := c.WaitForResult(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, a.Status)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{40, 40}, seen)
}

func TestWaitForResult_FailedIsTerminal(t *testing.T) {
	srv, _ := pollServer(t, 0, models.JobStatusFailed)
	a, err := client.New(srv.URL, "k", client.WithPolling(time.Millisecond, 5)).
		WaitForResult(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, a.Status)
}

func TestWaitForResult_PollTimeout(t *testing.T) {
	srv, calls := pollServer(t, 100, models.JobStatusCompleted)
	_, err := client.New(srv.URL, "k", client.WithPolling(time.Millisecond, 4)).
		WaitForResult(context.Background(), uuid.New())

	assert.ErrorIs(t, err, client.ErrPollTimeout)
	assert.Equal(t, int32(4), calls.Load())
}

func TestWaitForResult_NotFoundStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found")
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, "k", client.WithPolling(time.Millisecond, 10)).
		WaitForResult(context.Background(), uuid.New())
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitForResult_TransientErrorsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeErr(w, http.StatusServiceUnavailable, "DEGRADED", "db down")
			return
		}
		writeData(w, http.StatusOK, map[string]any{"task_id": uuid.New(), "status": "completed"})
	}))
	defer srv.Close()

	a, err := client.New(srv.URL, "k", client.WithPolling(time.Millisecond, 3)).
		WaitForResult(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, a.Status)
}

func TestWaitForResult_ContextCancelled(t *testing.T) {
	srv, _ := pollServer(t, 100, models.JobStatusCompleted)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.New(srv.URL, "k", client.WithPolling(time.Hour, 5)).WaitForResult(ctx, uuid.New())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
