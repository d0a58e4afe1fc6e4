package hostapi

import (
	"context"
	"errors"

	"github.com/nugget/msghub/internal/llm"
)

// AI is the optional completion façade handed to plugins: a thin wrapper
// around llm.Client so a plugin can ask for a one-shot completion (e.g.
// summarizing an ingested event into message text) without depending on
// internal/llm directly.
type AI struct {
	client llm.Client
	model  string
}

// NewAI wraps client for a default model. client may be nil, in which case
// Complete always returns an error — callers should check AI == nil before
// using the façade.
func NewAI(client llm.Client, model string) *AI {
	return &AI{client: client, model: model}
}

// Complete sends prompt as a single user message and returns the model's
// reply text.
func (a *AI) Complete(ctx context.Context, prompt string) (string, error) {
	if a.client == nil {
		return "", errors.New("hostapi: no AI client configured")
	}
	resp, err := a.client.Complete(ctx, a.model, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
