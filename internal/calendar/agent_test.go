package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/khariha/ferris-wheel/internal/llm"
)

type scriptedLLM struct {
	responses []*llm.ChatResponse
	calls     []llm.ChatRequest
}

func (s *scriptedLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls = append(s.calls, req)
	if len(s.calls) > len(s.responses) {
		return &llm.ChatResponse{FinishReason: llm.FinishFinal, Message: llm.Message{Content: "unscripted"}}, nil
	}
	return s.responses[len(s.calls)-1], nil
}

func (s *scriptedLLM) Ping(context.Context) error { return nil }

func call(name string, args map[string]any) *llm.ChatResponse {
	return &llm.ChatResponse{
		FinishReason: llm.FinishToolCall,
		Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Name: name, Arguments: args}}},
	}
}

func answer(text string) *llm.ChatResponse {
	return &llm.ChatResponse{FinishReason: llm.FinishFinal, Message: llm.Message{Role: llm.RoleAssistant, Content: text}}
}

func TestPreamble(t *testing.T) {
	if !strings.Contains(Preamble, "Always start by calling the get_client_events function") {
		t.Error("preamble must ask for get_client_events first")
	}
	if !strings.Contains(Preamble, "suspend_thread") {
		t.Error("preamble must mention suspend_thread")
	}
}

func TestAgent_CreatesEvent(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, discardLogger())
	mock := &scriptedLLM{responses: []*llm.ChatResponse{
		call("get_client_events", map[string]any{}),
		call("add_client_event", map[string]any{
			"title":         "Meeting with Ada",
			"date":          "2026-10-18",
			"start_time":    "14:00",
			"collaborators": []any{map[string]any{"name": "Ada"}},
		}),
		answer("Scheduled a meeting with Ada on 2026-10-18 at 14:00."),
		call("suspend_thread", map[string]any{"suspensionReasoning": "done"}),
	}}

	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	eng, err := NewAgent(discardLogger(), mock, svc, AgentConfig{
		Model:         "gpt-4o",
		MaxIterations: 6,
		Timezone:      "UTC",
		Now:           func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	res, err := eng.Run(context.Background(), "client-a", "The client uuid: client-a. The query from the user: Meeting with Ada tomorrow at 2pm")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Terminated || !strings.Contains(res.Content, "Scheduled") {
		t.Errorf("result = %+v", res)
	}

	first := mock.calls[0].Messages
	if first[0].Content != Preamble {
		t.Errorf("first message is not the preamble")
	}
	if !strings.Contains(first[1].Content, "**Date:** 2026-10-17") || !strings.Contains(first[1].Content, "**Tomorrow:** 2026-10-18") {
		t.Errorf("conditions = %q", first[1].Content)
	}
	if len(mock.calls[0].Tools) != 5 {
		t.Errorf("advertised tools = %d, want 5", len(mock.calls[0].Tools))
	}

	events := store.events["client-a"]
	if len(events) != 1 {
		t.Fatalf("events = %+v", store.events)
	}
	e := events[0]
	if e.Date != "2026-10-18" || e.StartTime == nil || *e.StartTime != "14:00" || e.Collaborators[0].Name != "Ada" {
		t.Errorf("event = %+v", e)
	}
}

func TestNewAgent_RejectsZeroCap(t *testing.T) {
	svc := NewService(newMemStore(), nil, discardLogger())
	if _, err := NewAgent(discardLogger(), &scriptedLLM{}, svc, AgentConfig{Model: "m"}); err == nil {
		t.Error("expected error for a zero iteration cap")
	}
}
