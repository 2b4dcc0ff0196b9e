// Package assistant composes the top-level agent: memory recall,
// delegation to the calendar sub-agent, an optional planning pass, and the
// hooks that turn finished exchanges into memories and stored
// conversations.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/khariha/ferris-wheel/internal/agent"
	"github.com/khariha/ferris-wheel/internal/delegate"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/memory"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// AgentName identifies the top-level agent in logs.
const AgentName = "assistant"

// ErrorText is what Ask returns when a run fails.
const ErrorText = "An error occurred while processing your request."

// Preamble instructs the top-level agent.
const Preamble = `You are a personal assistant with a long-term memory and access to the user's calendar.

Call try_to_remember before answering whenever an earlier conversation could matter.
Use query_events_agent for anything involving the user's calendar. It handles one event operation per call, so repeat it for each event.
Check the system messages in your context to see what you have already done, and do not repeat steps.

Give the user a complete answer as a normal (non-function) response. Then end the conversation by calling suspend_thread.`

const eventsAgentDescription = "Ask the events agent to read or change the user's calendar. " +
	"Describe one action in plain language, for example checking upcoming events, scheduling a meeting or moving one. " +
	"The agent cannot change more than one event per call."

// Config tunes the top-level agent.
type Config struct {
	Model         string
	PlannerModel  string
	MaxIterations int
	RecallLimit   int
	Planning      bool
}

// Deps are the collaborators an Assistant is built from. Cortex and
// Delegations may be nil.
type Deps struct {
	LLM         llm.Client
	Recaller    *memory.Recaller
	Store       *memory.Store
	Cortex      *memory.Cortex
	Events      delegate.Runner
	Delegations *delegate.Store
}

// Assistant answers client requests.
type Assistant struct {
	logger  *slog.Logger
	engine  *agent.Engine
	planner *agent.Engine
	store   *memory.Store
	cortex  *memory.Cortex
}

// New wires the top-level agent.
func New(logger *slog.Logger, deps Deps, cfg Config) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Recaller == nil || deps.Store == nil || deps.Events == nil {
		return nil, fmt.Errorf("assistant: recaller, store and events agent are required")
	}
	a := &Assistant{
		logger: logger.With("component", "assistant"),
		store:  deps.Store,
		cortex: deps.Cortex,
	}

	reg, err := tools.NewRegistry(tools.SuspendThread,
		RecallTool(deps.Recaller, cfg.RecallLimit),
		delegate.Tool(logger, tools.QueryEventsAgent, eventsAgentDescription, deps.Events, deps.Delegations),
		tools.Terminator(tools.SuspendThread),
	)
	if err != nil {
		return nil, err
	}

	a.engine, err = agent.New(logger, deps.LLM, agent.Config{
		Name:          AgentName,
		Model:         cfg.Model,
		Preamble:      Preamble,
		Tools:         reg,
		MaxIterations: cfg.MaxIterations,
		OnFinal:       a.onFinal,
		OnComplete:    a.onComplete,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Planning {
		model := cfg.PlannerModel
		if model == "" {
			model = cfg.Model
		}
		a.planner, err = NewPlanner(logger, deps.LLM, model)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Run answers request for clientID and returns the full result. Errors
// are transport failures or cancellation.
func (a *Assistant) Run(ctx context.Context, clientID, request string) (*agent.Result, error) {
	plan := a.plan(ctx, clientID, request)
	return a.engine.RunWithNotes(ctx, clientID, request, plan)
}

// Ask answers request for clientID. Failures are logged and reported to
// the caller as [ErrorText].
func (a *Assistant) Ask(ctx context.Context, clientID, request string) string {
	res, err := a.Run(ctx, clientID, request)
	if err != nil {
		a.logger.Error("request failed", "client_id", clientID, "error", err)
		return ErrorText
	}
	return res.Content
}

// Conversations lists a client's stored conversations.
func (a *Assistant) Conversations(ctx context.Context, clientID string) ([]memory.ConversationRecord, error) {
	return a.store.Conversations(ctx, clientID)
}

func (a *Assistant) plan(ctx context.Context, clientID, request string) string {
	if a.planner == nil {
		return ""
	}
	res, err := a.planner.Run(ctx, clientID, request)
	if err != nil {
		a.logger.Warn("planning failed, continuing without a plan", "client_id", clientID, "error", err)
		return ""
	}
	if !res.Answered || strings.TrimSpace(res.Content) == "" {
		return ""
	}
	return PlanNote(res.Content)
}

func (a *Assistant) onFinal(ctx context.Context, info agent.RunInfo, answer string) {
	if a.cortex == nil {
		return
	}
	a.cortex.RememberQuietly(ctx, info.ClientID, info.UserText, answer)
}

func (a *Assistant) onComplete(ctx context.Context, info agent.RunInfo, conversation []llm.Message) {
	if err := a.store.PersistConversation(ctx, info.ClientID, conversation); err != nil {
		a.logger.Warn("conversation not persisted", "client_id", info.ClientID, "run_id", info.RunID, "error", err)
	}
}
