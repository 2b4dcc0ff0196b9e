// Package llm talks to completion services. Every provider normalizes
// its wire format into [ChatResponse], so agents never see which one
// answered.
package llm

import "context"

// Client is a completion provider.
type Client interface {
	// Chat runs one completion. A response finishes either with content
	// or with a tool call; see [ChatResponse.ToolCall].
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Ping reports whether the provider is reachable.
	Ping(ctx context.Context) error
}

var (
	_ Client = (*OllamaClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MultiClient)(nil)
)
