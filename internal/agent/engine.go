// Package agent implements the bounded tool-calling loop shared by every
// agent in the system.
//
// An [Engine] sends the run's history to the completion service, and acts
// on whatever the service returns. A tool call is dispatched through the
// registry and its note is merged into history. A final answer is recorded
// but does not end the run. The run ends when the model calls the
// registry's terminator tool, or when the iteration cap is reached.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khariha/ferris-wheel/internal/history"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// FallbackText is returned when the iteration cap is reached before the
// model produced any answer.
const FallbackText = "The maximum number of attempts has been reached. Please refine your query or try again later."

// NoAnswerText is returned when the model calls the terminator without
// having produced an answer first.
const NoAnswerText = "Thread was suspended without a prior stop."

const terminateNote = "If you are seeing this message that means you've returned a complete response. Call the '%s' function to end the conversation."

// State is the position of a run in its lifecycle.
type State int

const (
	StateAwaitingModel State = iota
	StateDispatchingTool
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDispatchingTool:
		return "dispatching_tool"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RunInfo identifies a run to the hooks.
type RunInfo struct {
	Agent     string
	RunID     string
	ClientID  string
	UserText  string
	Iteration int
}

// Config parameterizes an Engine. Tools must contain a terminator.
type Config struct {
	Name          string
	Model         string
	Preamble      string
	Tools         *tools.Registry
	MaxIterations int
	Temperature   *float64

	// WithholdTools sends no tool definitions, so every completion is a
	// plain answer. The registry still names the terminator.
	WithholdTools bool

	// Conditions, when set, renders a system message placed after the
	// preamble at the start of every run.
	Conditions func() string

	// OnFinal runs each time the model produces a final answer.
	OnFinal func(ctx context.Context, info RunInfo, answer string)
	// OnComplete runs once when a run ends without error. It receives
	// the user and assistant turns only.
	OnComplete func(ctx context.Context, info RunInfo, conversation []llm.Message)
}

// Result is the outcome of a run.
type Result struct {
	Content    string
	Answered   bool // Content came from the model rather than a fixed string
	Terminated bool // the model called the terminator
	Exhausted  bool // the iteration cap was reached
	Iterations int
	Model      string

	InputTokens  int
	OutputTokens int

	Transcript []llm.Message
}

// Engine runs the loop for one agent configuration. It holds no per-run
// state and is safe for concurrent use.
type Engine struct {
	logger *slog.Logger
	llm    llm.Client
	cfg    Config
}

// New validates cfg and returns an Engine.
func New(logger *slog.Logger, client llm.Client, cfg Config) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("agent %q: nil llm client", cfg.Name)
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("agent %q: tool registry is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("agent %q: max iterations must be positive, got %d", cfg.Name, cfg.MaxIterations)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger.With("agent", cfg.Name),
		llm:    client,
		cfg:    cfg,
	}, nil
}

// Name returns the agent name.
func (e *Engine) Name() string { return e.cfg.Name }

// MaxIterations returns the iteration cap.
func (e *Engine) MaxIterations() int { return e.cfg.MaxIterations }

// Run drives one conversation to completion. Errors are returned only for
// transport failures and cancellation; exhaustion and domain failures are
// reported through the Result and the history respectively.
func (e *Engine) Run(ctx context.Context, clientID, userText string) (*Result, error) {
	return e.RunWithNotes(ctx, clientID, userText)
}

// RunWithNotes is Run with extra system messages placed ahead of the user
// turn. Empty notes are skipped.
func (e *Engine) RunWithNotes(ctx context.Context, clientID, userText string, notes ...string) (*Result, error) {
	runUUID, _ := uuid.NewV7()
	r := &run{
		engine: e,
		info: RunInfo{
			Agent:    e.cfg.Name,
			RunID:    runUUID.String(),
			ClientID: clientID,
			UserText: userText,
		},
		hist:   history.New(),
		result: &Result{Model: e.cfg.Model},
		start:  time.Now(),
	}
	r.log = e.logger.With("run_id", r.info.RunID, "client_id", clientID)

	if e.cfg.Preamble != "" {
		r.hist.AppendSystem(e.cfg.Preamble)
	}
	if e.cfg.Conditions != nil {
		r.hist.AppendSystem(e.cfg.Conditions())
	}
	for _, n := range notes {
		if n != "" {
			r.hist.AppendSystem(n)
		}
	}
	r.hist.AppendUser(userText)

	r.log.Info("agent run started",
		"model", e.cfg.Model,
		"max_iter", e.cfg.MaxIterations,
		"tools", len(e.cfg.Tools.Names()),
	)

	return r.loop(tools.WithClientID(ctx, clientID))
}

type run struct {
	engine *Engine
	info   RunInfo
	hist   *history.History
	result *Result
	log    *slog.Logger
	start  time.Time
	state  State

	pending  string
	answered bool
}

func (r *run) transition(to State) {
	if r.state != to {
		r.log.Debug("state transition", "from", r.state, "to", to, "iter", r.info.Iteration)
	}
	r.state = to
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	cfg := r.engine.cfg
	var defs []map[string]any
	toolChoice := ""
	if !cfg.WithholdTools {
		defs = cfg.Tools.Definitions()
		toolChoice = "auto"
	}

	for i := 1; i <= cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s run cancelled: %w", cfg.Name, err)
		}
		r.info.Iteration = i
		r.result.Iterations = i
		r.transition(StateAwaitingModel)

		iterStart := time.Now()
		resp, err := r.engine.llm.Chat(ctx, llm.ChatRequest{
			Model:       cfg.Model,
			Messages:    r.hist.Messages(),
			Tools:       defs,
			ToolChoice:  toolChoice,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			r.log.Error("completion failed", "iter", i, "error", err)
			return nil, fmt.Errorf("%s completion (iter %d): %w", cfg.Name, i, err)
		}
		r.result.InputTokens += resp.InputTokens
		r.result.OutputTokens += resp.OutputTokens

		r.log.Debug("completion received",
			"iter", i,
			"finish", resp.FinishReason,
			"tool_calls", len(resp.Message.ToolCalls),
			"elapsed", time.Since(iterStart).Round(time.Millisecond),
		)

		if resp.FinishReason == llm.FinishFinal {
			r.recordFinal(ctx, resp.Message.Content)
			continue
		}

		call, ok := resp.ToolCall()
		if !ok {
			r.log.Warn("tool call completion carried no call", "iter", i)
			if text := strings.TrimSpace(resp.Message.Content); text != "" {
				return r.finish(ctx, resp.Message.Content, true), nil
			}
			continue
		}
		if len(resp.Message.ToolCalls) > 1 {
			r.log.Warn("multiple tool calls in one completion, honoring the first",
				"iter", i, "tool", call.Name, "ignored", len(resp.Message.ToolCalls)-1)
		}

		if cfg.Tools.IsTerminator(call.Name) {
			r.result.Terminated = true
			if r.answered {
				return r.finish(ctx, r.pending, true), nil
			}
			return r.finish(ctx, NoAnswerText, false), nil
		}

		if !cfg.Tools.Has(call.Name) {
			// Unknown tools are a no-op that returns what was already
			// produced, in this completion or an earlier one.
			r.log.Warn("unknown tool requested, ignoring", "iter", i, "tool", call.Name)
			switch {
			case strings.TrimSpace(resp.Message.Content) != "":
				return r.finish(ctx, resp.Message.Content, true), nil
			case r.answered:
				return r.finish(ctx, r.pending, true), nil
			}
			continue
		}

		if err := r.dispatch(ctx, call); err != nil {
			return nil, err
		}
	}

	r.result.Exhausted = true
	r.log.Warn("max iterations reached", "max_iter", cfg.MaxIterations, "answered", r.answered)
	if r.answered {
		return r.finish(ctx, r.pending, true), nil
	}
	return r.finish(ctx, FallbackText, false), nil
}

// recordFinal stores a final answer and asks the model to terminate.
func (r *run) recordFinal(ctx context.Context, answer string) {
	cfg := r.engine.cfg
	r.hist.AppendAssistant(answer)
	r.pending = answer
	r.answered = true

	if cfg.OnFinal != nil {
		cfg.OnFinal(ctx, r.info, answer)
	}
	r.hist.UpsertTaggedSystemNote(history.TagTerminate, fmt.Sprintf(terminateNote, cfg.Tools.Terminator()))
	r.log.Info("final answer recorded", "iter", r.info.Iteration, "answer_len", len(answer))
}

// dispatch runs one registered tool and merges its note into history.
func (r *run) dispatch(ctx context.Context, call llm.ToolCall) error {
	r.transition(StateDispatchingTool)
	toolStart := time.Now()
	r.log.Info("tool exec", "iter", r.info.Iteration, "tool", call.Name)

	res, err := r.engine.cfg.Tools.Dispatch(tools.WithIteration(ctx, r.info.Iteration), call)

	switch {
	case tools.IsDomainError(err):
		r.log.Warn("tool exec rejected", "iter", r.info.Iteration, "tool", call.Name, "error", err)
		r.hist.UpsertTaggedSystemNote(tools.Name(call.Name).Tag(), failureNote(call.Name, err))
		return nil

	case err != nil:
		r.log.Error("tool exec failed", "iter", r.info.Iteration, "tool", call.Name, "error", err)
		return fmt.Errorf("%s tool %s (iter %d): %w", r.engine.cfg.Name, call.Name, r.info.Iteration, err)
	}

	if res.Context != "" {
		r.hist.PrependSystem(res.Context)
	}
	if res.Note != "" {
		r.hist.UpsertTaggedSystemNote(tools.Name(call.Name).Tag(), res.Note)
	}
	r.log.Debug("tool exec done",
		"iter", r.info.Iteration,
		"tool", call.Name,
		"note_len", len(res.Note),
		"context_len", len(res.Context),
		"elapsed", time.Since(toolStart).Round(time.Millisecond),
	)
	return nil
}

func (r *run) finish(ctx context.Context, content string, answered bool) *Result {
	r.transition(StateTerminated)
	r.result.Content = content
	r.result.Answered = answered
	r.result.Transcript = r.hist.Messages()

	if cb := r.engine.cfg.OnComplete; cb != nil {
		cb(ctx, r.info, r.hist.Conversation())
	}

	r.log.Info("agent run completed",
		"iterations", r.result.Iterations,
		"terminated", r.result.Terminated,
		"exhausted", r.result.Exhausted,
		"answered", answered,
		"input_tokens", r.result.InputTokens,
		"output_tokens", r.result.OutputTokens,
		"elapsed", time.Since(r.start).Round(time.Millisecond),
	)
	return r.result
}

func failureNote(tool string, err error) string {
	return fmt.Sprintf("###INSTRUCTION: The '%s' call failed: %v. Correct the arguments and try again, or tell the user what went wrong.", tool, err)
}
