package llm

import (
	"errors"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the history sent to the completion service.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is nil
// when the provider sent arguments that were not a JSON object; the raw
// text is kept in RawArguments so the registry can report the problem.
type ToolCall struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"-"`
}

// ErrIncomplete is returned when the provider truncated or withheld a
// completion. Its text is never an answer.
var ErrIncomplete = errors.New("completion incomplete")

// FinishReason says how the model ended a completion.
type FinishReason int

const (
	// FinishFinal is a free-text answer.
	FinishFinal FinishReason = iota
	// FinishToolCall asks the caller to run a tool.
	FinishToolCall
)

func (f FinishReason) String() string {
	switch f {
	case FinishFinal:
		return "final"
	case FinishToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// ChatRequest is a provider-neutral completion request. Tools are OpenAI
// function definitions as produced by the tool registry.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []map[string]any
	ToolChoice  string // "auto" or "" to let the provider decide
	Temperature *float64
}

// Temperature returns a pointer for ChatRequest.Temperature.
func Temperature(t float64) *float64 { return &t }

// ChatResponse is the unified response from any provider. Wire format
// conversion happens at provider boundaries (openai.go, ollama.go).
type ChatResponse struct {
	Model        string
	FinishReason FinishReason
	Message      Message

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ToolCall returns the first requested tool call. Only one call per
// completion is acted upon.
func (r *ChatResponse) ToolCall() (ToolCall, bool) {
	if r == nil || len(r.Message.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return r.Message.ToolCalls[0], true
}
