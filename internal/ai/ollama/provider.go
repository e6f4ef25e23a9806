package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/httpapi"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// Provider implements models.AIProvider using Ollama.
type Provider struct {
	cfg    config.OllamaConfig
	client *httpapi.Client
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{cfg: cfg, client: httpapi.New(timeout)}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.cfg.Model }

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body := generateRequest{
		Model:   p.cfg.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: options{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}

	var resp generateResponse
	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"
	if err := p.client.PostJSON(ctx, u, nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

var _ models.AIProvider = (*Provider)(nil)
