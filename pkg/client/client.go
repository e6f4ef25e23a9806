// Package client is a typed HTTP client for the FinSight API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// ErrPollTimeout is returned by WaitForResult when the job is still running
// after the last attempt. The job itself is not cancelled.
var ErrPollTimeout = errors.New("analysis still running after polling limit")

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// APIError is a non-2xx reply decoded from the error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finsight: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Queued is the reply to a queued submission.
type Queued struct {
	Status        string    `json:"status"`
	TaskID        uuid.UUID `json:"task_id"`
	Message       string    `json:"message"`
	EstimatedTime string    `json:"estimated_time"`
}

// FastResult is the reply to an inline analysis.
type FastResult struct {
	Status         string                 `json:"status"`
	TaskID         uuid.UUID              `json:"task_id"`
	Result         *models.AnalysisResult `json:"result"`
	ProcessingTime *float64               `json:"processing_time"`
}

// Analysis is a job as returned by GET /analysis/{taskID}.
type Analysis struct {
	models.Job
	QueueStatus string           `json:"queue_status,omitempty"`
	Progress    *models.Progress `json:"progress,omitempty"`
}

// Client talks to one FinSight server with one API key.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	maxAttempts  int
	onPoll       func(*Analysis)
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPolling overrides the WaitForResult interval and attempt count.
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.maxAttempts = maxAttempts
	}
}

// WithPollObserver is called with every non-terminal state WaitForResult sees.
func WithPollObserver(fn func(*Analysis)) Option {
	return func(c *Client) { c.onPoll = fn }
}

// New creates a Client for the server at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 10 * time.Minute},
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads a PDF for queued analysis.
func (c *Client) Submit(ctx context.Context, filename string, doc io.Reader, query string) (*Queued, error) {
	var out Queued
	if err := c.upload(ctx, "/analyze", filename, doc, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeFast uploads a PDF and waits for the inline analysis.
func (c *Client) AnalyzeFast(ctx context.Context, filename string, doc io.Reader, query string) (*FastResult, error) {
	var out FastResult
	if err := c.upload(ctx, "/analyze-fast", filename, doc, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the job and, while it runs, its progress.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	var out Analysis
	if err := c.do(ctx, http.MethodGet, "/analysis/"+id.String(), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the most recent jobs. A zero limit uses the server default.
func (c *Client) List(ctx context.Context, limit int) ([]*models.Job, error) {
	path := "/analyses"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out struct {
		Analyses []*models.Job `json:"analyses"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

// Stats returns aggregate job counts.
func (c *Client) Stats(ctx context.Context) (*models.JobStats, error) {
	var out models.JobStats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a job. Requires an admin key.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/analysis/"+id.String(), nil, "", nil)
}

// WaitForResult polls until the job is completed or failed. It returns
// ErrPollTimeout after the configured number of attempts. Transient errors
// are logged and polling continues; a 404 ends it.
func (c *Client) WaitForResult(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}

		a, err := c.Get(ctx, id)
		switch {
		case err == nil && a.Status.IsTerminal():
			return a, nil
		case err == nil:
			if c.onPoll != nil {
				c.onPoll(a)
			}
		case IsNotFound(err), ctx.Err() != nil:
			return nil, err
		default:
			slog.Warn("polling analysis failed", "task_id", id, "attempt", attempt, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: task %s after %d attempts", ErrPollTimeout, id, c.maxAttempts)
}

func (c *Client) upload(ctx context.Context, path, filename string, doc io.Reader, query string, out any) error {
	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	fw, err := mpw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(fw, doc); err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if query != "" {
		if err := mpw.WriteField("query", query); err != nil {
			return fmt.Errorf("building upload: %w", err)
		}
	}
	if err := mpw.Close(); err != nil {
		return fmt.Errorf("building upload: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, &body, mpw.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s reply: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
