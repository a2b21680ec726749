// Package llm defines the Provider interface for the language-model backends
// voxfill uses as its extraction and correction capabilities.
//
// A provider wraps a remote or local model API (e.g., OpenAI, Anthropic, or a
// local Ollama instance) and exposes a uniform completion interface so the
// turn pipeline never couples to a specific SDK. Both capabilities are strict
// request/response JSON exchanges, so the interface is deliberately narrow:
// a single blocking Complete call.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled the call must return as
// quickly as possible.
package llm

import "context"

// Message is a single entry in the conversation sent to the model.
type Message struct {
	// Role is the speaker role ("user", "assistant", "system").
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some providers return it directly rather than computing it
	// from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers that have no dedicated system slot should
	// prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Both
	// voxfill capabilities request near-zero temperatures for determinism.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives. The pipeline treats any non-nil error as a
	// transport failure and falls back per its recovery policy.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
