// Package llm provides a single-shot text-completion client used by
// the repair loop to propose source fixes. It deliberately does not
// support streaming or tool calling — every call is a bounded request/
// response round trip against a remote provider.
package llm

import "context"

// Message is one turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse is the unified response from any provider.
type CompletionResponse struct {
	Model        string
	Content      string
	InputTokens  int
	OutputTokens int
}

// Client is the interface every provider implements.
type Client interface {
	// Complete sends a single-shot completion request.
	Complete(ctx context.Context, model string, messages []Message) (*CompletionResponse, error)

	// Ping checks whether the provider is reachable.
	Ping(ctx context.Context) error
}
