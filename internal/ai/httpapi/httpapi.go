// Package httpapi is the JSON-over-HTTP transport shared by the model providers.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for provider failures. Re-exported by package ai.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

const maxErrorBody = 512

// Client posts JSON requests to a model API and decodes JSON replies.
type Client struct {
	client *http.Client
}

// New creates a Client whose requests give up after timeout.
func New(timeout time.Duration) *Client {
	return &Client{client: &http.Client{Timeout: timeout}}
}

// PostJSON marshals in, posts it to url with the given headers and decodes
// a 200 reply into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding reply: %v", ErrInvalidResponse, err)
	}
	return nil
}

// classifyStatus maps non-200 replies to sentinel errors.
func classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, bytes.TrimSpace(snippet))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, bytes.TrimSpace(snippet))
	}
}

// ClassifyError maps transport-level errors to sentinel errors.
func ClassifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
