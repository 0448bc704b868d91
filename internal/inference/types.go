// Package inference is the boundary adapter for the external inference
// service. Stages hand it a prompt and get back structured text plus token
// usage; failures are typed so the orchestrator can decide what to retry.
package inference

import (
	"context"

	"github.com/freightmind/extractd/internal/config"
)

// Request is one inference call: a system prompt describing the expected
// output shape and a user prompt carrying the transcript material.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage is the metered token cost of a single call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response carries the raw model text plus metering for the call.
type Response struct {
	Text  string
	Usage Usage
}

// Client is implemented by each inference provider.
type Client interface {
	// Complete performs one inference call. Errors are classified via
	// Retryable; malformed upstream payloads surface as MalformedOutputError.
	Complete(ctx context.Context, req Request) (Response, error)

	// Provider returns the provider name for logging and metrics.
	Provider() string

	// Model returns the configured model identifier.
	Model() string
}

// New constructs the provider named in cfg.
func New(cfg config.InferenceConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	case "stub":
		return NewStubClient(nil), nil
	default:
		return nil, &ConfigError{Provider: cfg.Provider}
	}
}
