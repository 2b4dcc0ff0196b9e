package llm

import (
	"context"
	"errors"
	"fmt"
)

// fallbackProvider names the fallback in [MultiClient.Route].
const fallbackProvider = "fallback"

// MultiClient routes each completion to the provider serving its model.
// Models with no mapping, or mapped to a provider that was never added,
// go to the fallback. Providers and models are registered during wiring
// and must not change once requests are flowing.
type MultiClient struct {
	providers map[string]Client
	routes    map[string]string // model -> provider
	fallback  Client
}

// NewMultiClient returns a router that sends unmapped models to fallback.
// A nil fallback makes unmapped models an error.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		fallback:  fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel routes model to the named provider.
func (m *MultiClient) AddModel(model, provider string) {
	m.routes[model] = provider
}

// Route returns the provider name that serves model, or "fallback".
func (m *MultiClient) Route(model string) string {
	if provider, ok := m.routes[model]; ok {
		if _, ok := m.providers[provider]; ok {
			return provider
		}
	}
	return fallbackProvider
}

func (m *MultiClient) clientFor(model string) Client {
	if name := m.Route(model); name != fallbackProvider {
		return m.providers[name]
	}
	return m.fallback
}

// Chat sends req to the provider serving req.Model.
func (m *MultiClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	client := m.clientFor(req.Model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", req.Model)
	}
	resp, err := client.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Route(req.Model), err)
	}
	return resp, nil
}

// Ping checks the fallback provider, which serves every unlisted model.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil {
		return errors.New("no fallback provider configured")
	}
	return m.fallback.Ping(ctx)
}
