// Package llm provides text-generation providers for the Research Pipeline
// Service. Providers speak their vendor HTTP APIs directly and conform to
// the Completer interface so report synthesis can walk a model fallback
// chain without caring which vendor serves it.
package llm

import "context"

// CompletionRequest carries one generation call.
type CompletionRequest struct {
	// Model overrides the provider's configured model for this call.
	// Empty means the provider default.
	Model string
	// SystemPrompt sets the generation instructions.
	SystemPrompt string
	// UserPayload is the user-turn content, typically a JSON blob of paper
	// fields and prior analysis.
	UserPayload string
	// MaxTokens bounds the response length. Zero means the provider default.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// Completer defines the interface for LLM text generation.
//
// Implementations handle provider-specific API calls, retries on transient
// failures, and error handling while conforming to this unified interface.
type Completer interface {
	// Complete generates text for the request. The context should be used
	// for cancellation and deadline propagation. Implementations retry
	// transient errors (429, 5xx, network) internally and return wrapped
	// errors with provider context.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the default model identifier.
	Model() string
}
