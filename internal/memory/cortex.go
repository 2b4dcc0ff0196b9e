package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/khariha/ferris-wheel/internal/llm"
)

const recollectionPrompt = `You are a cortex. Your purpose is to remember and recall information.
You will be provided a memory from another model. Your task is to create a recollection based on that memory.
A record of your recollection will be stored in the model's cortex. The memory should include precise details and context.
Make sure your recollection is accurate and relevant to the memory provided. Do not include any new information.
Your recollection should be in the first person and in the past tense. Do not include any formatting, keep it in text paragraph form.
Position the recollection as if you are recalling the memory from your own perspective while helping the user. Include what the user asked and how you responded.`

// Cortex turns a finished exchange into a first-person recollection and
// stores it.
type Cortex struct {
	llm    llm.Client
	model  string
	store  *Store
	logger *slog.Logger
}

// NewCortex returns a Cortex that writes recollections produced by model.
func NewCortex(client llm.Client, model string, store *Store, logger *slog.Logger) *Cortex {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cortex{
		llm:    client,
		model:  model,
		store:  store,
		logger: logger.With("component", "cortex"),
	}
}

// Remember rewrites the user/assistant exchange as a recollection and
// persists it.
func (c *Cortex) Remember(ctx context.Context, clientID, user, assistant string) error {
	exchange, err := json.Marshal(struct {
		User      string `json:"user"`
		Assistant string `json:"assistant"`
	}{user, assistant})
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}

	resp, err := c.llm.Chat(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: recollectionPrompt},
			{Role: llm.RoleUser, Content: string(exchange)},
		},
		Temperature: llm.Temperature(0.2),
	})
	if err != nil {
		return fmt.Errorf("recollection completion: %w", err)
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return fmt.Errorf("recollection completion returned no text")
	}
	return c.store.PersistMemory(ctx, clientID, text)
}

// RememberQuietly is Remember with failures logged instead of returned.
func (c *Cortex) RememberQuietly(ctx context.Context, clientID, user, assistant string) {
	if err := c.Remember(ctx, clientID, user, assistant); err != nil {
		c.logger.Warn("memory formation failed", "client_id", clientID, "error", err)
	}
}
