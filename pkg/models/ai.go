// Package models contains shared data models used across the FinSight codebase.
package models

import "context"

// AIProvider is the core interface that all model integrations must implement.
// Never call specific providers directly; always inject this interface.
type AIProvider interface {
	// Generate sends a single natural-language request and returns the raw model text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string
	// Model returns the configured model name.
	Model() string
}

// GenerateRequest is the input to one model round-trip.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}
