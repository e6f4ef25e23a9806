package vllm

import (
	"time"

	"github.com/kiranshivaraju/finsight/internal/ai/openai"
	"github.com/kiranshivaraju/finsight/internal/config"
)

// NewProvider returns a provider for a vLLM server. vLLM serves the OpenAI
// chat completions API, so the openai client is reused under the vllm name.
func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout)
}
