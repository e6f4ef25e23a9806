package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/httpapi"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Provider implements models.AIProvider against any OpenAI-compatible
// chat completions endpoint.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *httpapi.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
}

// NewCompatible builds a provider for a self-hosted server speaking the
// OpenAI wire format. apiKey may be empty.
func NewCompatible(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpapi.New(timeout),
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body := chatRequest{
		Model:       p.model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var headers map[string]string
	if p.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + p.apiKey}
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", httpapi.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ models.AIProvider = (*Provider)(nil)
