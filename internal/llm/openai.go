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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to any endpoint that implements the OpenAI chat
// completions API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client. An empty baseURL selects the public
// OpenAI API.
func NewOpenAIClient(baseURL, apiKey string, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(),
		logger:     logger.With("provider", "openai"),
	}
}

type openaiRequest struct {
	Model       string           `json:"model"`
	Messages    []openaiMessage  `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON-encoded object
	} `json:"function"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role      string           `json:"role"`
			Content   *string          `json:"content"`
			ToolCalls []openaiToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := openaiRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       req.Tools,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "model", req.Model, "body", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var wire openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out, err := fromOpenAIResponse(&wire)
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)

	c.logger.Debug("completion received",
		"model", out.Model,
		"finish", out.FinishReason,
		"tool_calls", len(out.Message.ToolCalls),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"elapsed", out.Duration.Round(time.Millisecond),
	)
	return out, nil
}

// Ping lists models to verify the endpoint and key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

func toOpenAIMessages(msgs []Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openaiMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var wire openaiToolCall
			wire.ID = tc.ID
			wire.Type = "function"
			wire.Function.Name = tc.Name
			args, _ := json.Marshal(tc.Arguments)
			wire.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, wire)
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIResponse(wire *openaiResponse) (*ChatResponse, error) {
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}
	choice := wire.Choices[0]

	out := &ChatResponse{
		Model:        wire.Model,
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
		Message:      Message{Role: RoleAssistant},
	}
	if choice.Message.Content != nil {
		out.Message.Content = *choice.Message.Content
	}

	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		}
		var args map[string]any
		if strings.TrimSpace(tc.Function.Arguments) == "" {
			call.Arguments = map[string]any{}
		} else if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
			call.Arguments = args
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, call)
	}

	// Some compatible servers report "stop" alongside tool calls, and
	// some omit the reason entirely.
	switch reason := choice.FinishReason; {
	case reason == "length" || reason == "content_filter":
		return nil, fmt.Errorf("%w: finish_reason %q", ErrIncomplete, reason)
	case reason == "tool_calls" || reason == "function_call" || len(out.Message.ToolCalls) > 0:
		out.FinishReason = FinishToolCall
	case reason == "stop" || reason == "":
		out.FinishReason = FinishFinal
	default:
		return nil, fmt.Errorf("%w: unknown finish_reason %q", ErrIncomplete, reason)
	}
	return out, nil
}
