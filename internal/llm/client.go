// Package llm provides the completion clients behind the hub's optional
// AI façade. Plugins only ever need a single-shot completion (summarize
// an ingested event, draft message text), so the surface is deliberately
// small: one Complete call, no streaming, no tool use.
package llm

import "context"

// Message is one chat turn sent to a provider. Role is "system", "user",
// or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the provider-neutral completion result. Token counts are
// zero when a provider doesn't report them.
type Response struct {
	Model        string
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is implemented by every provider.
type Client interface {
	// Complete sends messages and returns the model's reply.
	Complete(ctx context.Context, model string, messages []Message) (*Response, error)

	// Ping checks that the provider is reachable and credentials work.
	Ping(ctx context.Context) error
}
