package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/httpapi"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

const apiVersion = "2023-06-01"

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *httpapi.Client
}

func NewProvider(cfg config.AnthropicConfig, timeout time.Duration) *Provider {
	return &Provider{cfg: cfg, client: httpapi.New(timeout)}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.cfg.Model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}

	var resp messagesResponse
	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	if err := p.client.PostJSON(ctx, u, headers, body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text content", httpapi.ErrInvalidResponse)
	}
	return sb.String(), nil
}

var _ models.AIProvider = (*Provider)(nil)
