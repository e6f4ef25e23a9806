package gemini

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/httpapi"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Provider implements models.AIProvider using the Gemini generateContent API.
type Provider struct {
	cfg    config.GeminiConfig
	client *httpapi.Client
}

func NewProvider(cfg config.GeminiConfig, timeout time.Duration) *Provider {
	return &Provider{cfg: cfg, client: httpapi.New(timeout)}
}

func (p *Provider) Name() string  { return "gemini" }
func (p *Provider) Model() string { return p.cfg.Model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.Model))

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	var resp generateResponse
	headers := map[string]string{"x-goog-api-key": p.cfg.APIKey}
	if err := p.client.PostJSON(ctx, u, headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", httpapi.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	return sb.String(), nil
}

var _ models.AIProvider = (*Provider)(nil)
