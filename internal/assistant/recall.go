package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/khariha/ferris-wheel/internal/memory"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// MaxRecalls is the number of try_to_remember calls the recall note
// allows.
const MaxRecalls = 3

const recallNote = "###INSTRUCTION: If you are seeing this message that means you've successfully retrieved a memory. " +
	"Do not call the 'try_to_remember' function again unless instructed. " +
	"This is iteration %d of the conversation and you are limited to calling 'try_to_remember' %d times. " +
	"Return an assistant response immediately."

// RecallTool builds try_to_remember over r. Each call queries the
// client's memory collection and prepends what it finds.
func RecallTool(r *memory.Recaller, limit int) *tools.Tool {
	return &tools.Tool{
		Name: tools.TryToRemember,
		Description: "Always call this function before trying to answer the user's question. " +
			"It recalls memories of earlier conversations with this user from the cortex.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"memoryRequest": map[string]any{
					"type": "string",
					"description": "Make this request as specific as possible. Say whether you want something verbatim " +
						"or a generalized recollection.",
				},
			},
			"required":             []string{"memoryRequest"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			query, _ := tools.StringArg(args, "memoryRequest")
			if strings.TrimSpace(query) == "" {
				return tools.Result{}, tools.DomainError(fmt.Errorf("memoryRequest must not be empty"))
			}
			recs, err := r.Recall(ctx, tools.ClientIDFromContext(ctx), memory.KindMemory, query, limit)
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{
				Context: memory.RenderContext(recs),
				Note:    fmt.Sprintf(recallNote, tools.IterationFromContext(ctx), MaxRecalls),
			}, nil
		},
	}
}
