package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/finsight/internal/ai"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (string, error)

	mu    sync.Mutex
	calls []models.GenerateRequest
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerateRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewMockProvider returns a MockProvider that always replies with text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return text, nil
		},
	}
}

// NewScriptedProvider replies with each response in order, then repeats the last one.
func NewScriptedProvider(responses ...string) *MockProvider {
	var (
		mu sync.Mutex
		i  int
	)
	return &MockProvider{
		Name_:  "mock-scripted",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(responses) == 0 {
				return "", nil
			}
			r := responses[min(i, len(responses)-1)]
			i++
			return r, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
