// Package delegate exposes a sub-agent as a tool of another agent. The
// calling model hands over a plain-language query; the sub-agent runs its
// own bounded loop and its final text comes back as the tool's note.
package delegate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khariha/ferris-wheel/internal/agent"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// Runner is a sub-agent. [agent.Engine] satisfies it.
type Runner interface {
	Name() string
	MaxIterations() int
	Run(ctx context.Context, clientID, task string) (*agent.Result, error)
}

// Task renders the user message a sub-agent receives.
func Task(clientID, query string) string {
	return fmt.Sprintf("The client uuid: %s. The query from the user: %s", clientID, query)
}

// Parameters returns the JSON schema shared by delegation tools.
func Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The user's request, restated in full for the sub-agent",
			},
		},
		"required": []string{"query"},
	}
}

// Tool builds a delegation tool. store may be nil.
func Tool(logger *slog.Logger, name tools.Name, description string, runner Runner, store *Store) *tools.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	d := &delegation{
		logger: logger.With("component", "delegate", "agent", runner.Name()),
		runner: runner,
		store:  store,
	}
	return &tools.Tool{
		Name:        name,
		Description: description,
		Parameters:  Parameters(),
		Handler:     d.handle,
	}
}

type delegation struct {
	logger *slog.Logger
	runner Runner
	store  *Store
}

func (d *delegation) handle(ctx context.Context, args map[string]any) (tools.Result, error) {
	query, _ := tools.StringArg(args, "query")
	query = strings.TrimSpace(query)
	if query == "" {
		return tools.Result{}, tools.DomainError(fmt.Errorf("query must not be empty"))
	}
	clientID := tools.ClientIDFromContext(ctx)

	id, _ := uuid.NewV7()
	delegateID := id.String()
	task := Task(clientID, query)
	start := time.Now()

	d.logger.Info("delegate started",
		"delegate_id", delegateID,
		"client_id", clientID,
		"max_iter", d.runner.MaxIterations(),
	)

	res, err := d.runner.Run(ctx, clientID, task)
	elapsed := time.Since(start)

	d.record(ctx, delegateID, clientID, task, start, elapsed, res, err)

	if err != nil {
		d.logger.Error("delegate failed",
			"delegate_id", delegateID,
			"elapsed", elapsed.Round(time.Millisecond),
			"error", err,
		)
		return tools.Result{}, fmt.Errorf("delegate %s: %w", d.runner.Name(), err)
	}

	d.logger.Info("delegate completed",
		"delegate_id", delegateID,
		"iter", res.Iterations,
		"terminated", res.Terminated,
		"exhausted", res.Exhausted,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return tools.Result{Note: res.Content}, nil
}

func (d *delegation) record(ctx context.Context, id, clientID, task string, start time.Time, elapsed time.Duration, res *agent.Result, runErr error) {
	if d.store == nil {
		return
	}
	rec := &Record{
		ID:            id,
		ClientID:      clientID,
		Agent:         d.runner.Name(),
		Task:          task,
		MaxIterations: d.runner.MaxIterations(),
		StartedAt:     start,
		CompletedAt:   start.Add(elapsed),
		DurationMs:    elapsed.Milliseconds(),
	}
	if res != nil {
		rec.Iterations = res.Iterations
		rec.Exhausted = res.Exhausted
		rec.Terminated = res.Terminated
		rec.Result = res.Content
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// The run context may already be cancelled; the record should still land.
	if err := d.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("failed to record delegation", "delegate_id", id, "error", err)
	}
}
