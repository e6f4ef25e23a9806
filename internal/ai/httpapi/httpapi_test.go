package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Text string `json:"text"`
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(echo{Text: in.Text + "!"})
	}))
	defer srv.Close()

	c := httpapi.New(5 * time.Second)
	var out echo
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"X-Api-Key": "secret"}, echo{Text: "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi!", out.Text)
}

func TestPostJSON_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, httpapi.ErrProviderUnavailable},
		{http.StatusBadGateway, httpapi.ErrProviderUnavailable},
		{http.StatusTooManyRequests, httpapi.ErrProviderUnavailable},
		{http.StatusUnauthorized, httpapi.ErrProviderUnavailable},
		{http.StatusBadRequest, httpapi.ErrInvalidResponse},
		{http.StatusNotFound, httpapi.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			var out echo
			err := httpapi.New(time.Second).PostJSON(context.Background(), srv.URL, nil, echo{}, &out)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestPostJSON_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out echo
	err := httpapi.New(time.Second).PostJSON(context.Background(), srv.URL, nil, echo{}, &out)
	assert.ErrorIs(t, err, httpapi.ErrInvalidResponse)
}

func TestPostJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	var out echo
	err := httpapi.New(50*time.Millisecond).PostJSON(context.Background(), srv.URL, nil, echo{}, &out)
	assert.ErrorIs(t, err, httpapi.ErrInferenceTimeout)
}

func TestPostJSON_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	var out echo
	err := httpapi.New(time.Second).PostJSON(context.Background(), url, nil, echo{}, &out)
	assert.ErrorIs(t, err, httpapi.ErrProviderUnavailable)
}

func TestClassifyError_ContextCanceled(t *testing.T) {
	err := httpapi.ClassifyError(context.Canceled)
	assert.ErrorIs(t, err, httpapi.ErrInferenceTimeout)
}
