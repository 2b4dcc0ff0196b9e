package llm

import (
	"context"
	"errors"
	"testing"
)

type namedClient struct {
	name   string
	models []string
}

func (c *namedClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	c.models = append(c.models, req.Model)
	return &ChatResponse{Model: c.name, Message: Message{Role: RoleAssistant, Content: c.name}}, nil
}

func (c *namedClient) Ping(context.Context) error {
	if c.name == "down" {
		return errors.New("unreachable")
	}
	return nil
}

func TestMultiClient_Routing(t *testing.T) {
	ollama := &namedClient{name: "ollama"}
	openai := &namedClient{name: "openai"}

	m := NewMultiClient(ollama)
	m.AddProvider("ollama", ollama)
	m.AddProvider("openai", openai)
	m.AddModel("gpt-4o", "openai")
	m.AddModel("qwen3:4b", "ollama")
	m.AddModel("orphan", "missing-provider")

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o", "openai"},
		{"qwen3:4b", "ollama"},
		{"unlisted", "ollama"},
		{"orphan", "ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			resp, err := m.Chat(context.Background(), ChatRequest{Model: tt.model})
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if resp.Model != tt.want {
				t.Errorf("routed to %q, want %q", resp.Model, tt.want)
			}
		})
	}
}

func TestMultiClient_NoFallback(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.Chat(context.Background(), ChatRequest{Model: "anything"}); err == nil {
		t.Error("expected error with no provider")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected Ping error with no fallback")
	}
}

func TestMultiClient_PingUsesFallback(t *testing.T) {
	m := NewMultiClient(&namedClient{name: "down"})
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected fallback ping failure to surface")
	}
}

func TestMultiClient_Route(t *testing.T) {
	m := NewMultiClient(&namedClient{name: "ollama"})
	m.AddProvider("openai", &namedClient{name: "openai"})
	m.AddModel("gpt-4o", "openai")
	m.AddModel("orphan", "missing-provider")

	for model, want := range map[string]string{
		"gpt-4o":   "openai",
		"orphan":   "fallback",
		"unlisted": "fallback",
	} {
		if got := m.Route(model); got != want {
			t.Errorf("Route(%q) = %q, want %q", model, got, want)
		}
	}
}

type failingClient struct{ namedClient }

func (failingClient) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	return nil, errors.New("connection refused")
}

func TestMultiClient_ChatErrorNamesProvider(t *testing.T) {
	m := NewMultiClient(nil)
	m.AddProvider("openai", &failingClient{})
	m.AddModel("gpt-4o", "openai")

	_, err := m.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
	if err == nil || err.Error() != "openai: connection refused" {
		t.Errorf("err = %v, want provider-prefixed error", err)
	}
}
