package ai

import (
	"fmt"

	"github.com/kiranshivaraju/finsight/internal/ai/anthropic"
	"github.com/kiranshivaraju/finsight/internal/ai/gemini"
	"github.com/kiranshivaraju/finsight/internal/ai/ollama"
	"github.com/kiranshivaraju/finsight/internal/ai/openai"
	"github.com/kiranshivaraju/finsight/internal/ai/vllm"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at process startup and injected into the insight extractor.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	timeout := cfg.InferenceTimeout
	switch cfg.Provider {
	case "gemini":
		return gemini.NewProvider(cfg.Gemini, timeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, timeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, timeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, timeout), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, timeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gemini, openai, vllm, anthropic, ollama", cfg.Provider)
	}
}
