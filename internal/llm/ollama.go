package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/khariha/ferris-wheel/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Large local models with tools need time.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(5 * time.Minute)),
		logger:     logger.With("provider", "ollama"),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"` // Ollama sends an object, not a string
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat request. Ollama has no tool_choice
// parameter; tools are always offered when present.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    req.Tools,
	}
	if req.Temperature != nil {
		body.Options = &ollamaOptions{Temperature: req.Temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "model", req.Model, "body", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var wire ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if wire.DoneReason == "length" {
		return nil, fmt.Errorf("%w: done_reason %q", ErrIncomplete, wire.DoneReason)
	}
	out := fromOllamaResponse(&wire)
	c.logger.Debug("completion received",
		"model", out.Model,
		"finish", out.FinishReason,
		"tool_calls", len(out.Message.ToolCalls),
		"elapsed", out.Duration.Round(time.Millisecond),
	)
	return out, nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}

func toOllamaMessages(msgs []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var wire ollamaToolCall
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, wire)
		}
		out = append(out, om)
	}
	return out
}

func fromOllamaResponse(wire *ollamaResponse) *ChatResponse {
	out := &ChatResponse{
		Model:        wire.Model,
		InputTokens:  wire.PromptEvalCount,
		OutputTokens: wire.EvalCount,
		Duration:     time.Duration(wire.TotalDuration),
		Message:      Message{Role: RoleAssistant, Content: wire.Message.Content},
	}
	for _, tc := range wire.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	// Smaller models often emit the call as JSON in the content instead
	// of using the native tool_calls field.
	if len(out.Message.ToolCalls) == 0 && out.Message.Content != "" {
		if parsed := parseTextToolCalls(out.Message.Content); len(parsed) > 0 {
			out.Message.ToolCalls = parsed
			out.Message.Content = ""
		}
	}

	if len(out.Message.ToolCalls) > 0 {
		out.FinishReason = FinishToolCall
	} else {
		out.FinishReason = FinishFinal
	}
	return out
}

// parseTextToolCalls extracts tool calls written into the content text.
// It accepts a bare object {"name": ..., "arguments": {...}}, an array of
// such objects, or either form wrapped in <tool_call> tags.
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil || len(calls) == 0 {
		var single textCall
		if err := json.Unmarshal([]byte(content), &single); err != nil || single.Name == "" {
			return nil
		}
		calls = []textCall{single}
	}

	result := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Name == "" {
			continue
		}
		args := c.Arguments
		if args == nil {
			args = map[string]any{}
		}
		result = append(result, ToolCall{Name: c.Name, Arguments: args})
	}
	return result
}
