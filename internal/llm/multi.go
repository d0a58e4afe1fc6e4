package llm

import (
	"context"
	"fmt"
)

// MultiClient routes each call to a provider by model name, with a
// fallback for models no provider has claimed. Useful when a host
// configures, say, a local Ollama for cheap summaries and a hosted
// provider for anything else.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client
}

// NewMultiClient creates a router with fallback as the default provider.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a registered provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

func (m *MultiClient) clientFor(model string) Client {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client
		}
	}
	return m.fallback
}

// Complete routes to the provider registered for model.
func (m *MultiClient) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.Complete(ctx, model, messages)
}

// Ping checks the fallback provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil {
		return fmt.Errorf("no fallback provider configured")
	}
	return m.fallback.Ping(ctx)
}

var _ Client = (*MultiClient)(nil)
