package driven

import (
	"context"
	"errors"
)

// ErrNoCredentials indicates no API key is configured for the requested
// LLM provider.
var ErrNoCredentials = errors.New("no credentials configured for provider")

// SummaryRequest is a single chat-completion request to an LLM provider.
type SummaryRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// SummaryResponse is the provider's completion plus usage accounting.
type SummaryResponse struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// Summarizer defines the driven port for LLM chat-completion providers.
type Summarizer interface {
	// Summarize sends one chat-completion request and returns the full
	// response text. Implementations retry transient failures internally.
	Summarize(ctx context.Context, req SummaryRequest) (*SummaryResponse, error)
	// Name returns the provider identifier ("openai", "zhipu").
	Name() string
	// Model returns the model identifier requests are sent with.
	Model() string
	// ContextTokens returns the provider model's usable context window size,
	// used by the application layer for prompt batching.
	ContextTokens() int
}
