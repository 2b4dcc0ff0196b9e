// Package tools defines the tool registry the agent loop dispatches into.
//
// Each agent instance gets its own Registry, fixed at construction. Tools
// are keyed by the closed [Name] enum rather than free-form strings, so a
// registry can only ever hold tools this program knows how to run. Every
// registry has exactly one terminator: a handler-less tool whose call ends
// the orchestration run.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khariha/ferris-wheel/internal/history"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/xeipuuv/gojsonschema"
)

// Name identifies a tool.
type Name string

// The complete set of tools.
const (
	TryToRemember     Name = "try_to_remember"
	QueryEventsAgent  Name = "query_events_agent"
	SuspendThread     Name = "suspend_thread"
	GetClientEvents   Name = "get_client_events"
	AddClientEvent    Name = "add_client_event"
	UpdateClientEvent Name = "update_client_event"
	DeleteClientEvent Name = "delete_client_event"
)

var knownNames = map[Name]bool{
	TryToRemember:     true,
	QueryEventsAgent:  true,
	SuspendThread:     true,
	GetClientEvents:   true,
	AddClientEvent:    true,
	UpdateClientEvent: true,
	DeleteClientEvent: true,
}

// Valid reports whether n is one of the declared tool names.
func (n Name) Valid() bool {
	return knownNames[n]
}

// Tag returns the history tag under which this tool's notes are kept.
func (n Name) Tag() history.Tag {
	return history.Tag(n)
}

// Result is what a handler hands back to the loop. Note is upserted into
// history under the tool's tag. Context, when set, is prepended to the
// history ahead of everything else.
type Result struct {
	Note    string
	Context string
}

// Handler performs a tool's side effect.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Tool represents a callable tool.
type Tool struct {
	Name        Name
	Description string
	Parameters  map[string]any // JSON schema for the arguments object
	Handler     Handler
}

// Terminator builds the handler-less tool whose call ends a run.
func Terminator(name Name) *Tool {
	return &Tool{
		Name:        name,
		Description: "Ends the conversation. Call this once you have given your complete response.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"suspensionReasoning": map[string]any{
					"type":        "string",
					"description": "Why the conversation can be ended now.",
				},
			},
		},
	}
}

type entry struct {
	tool   *Tool
	schema *gojsonschema.Schema
}

// Registry holds the tools of one agent instance.
type Registry struct {
	entries    map[Name]*entry
	order      []Name
	terminator Name
}

// NewRegistry builds a registry. It fails if a name is undeclared or
// repeated, if a non-terminator tool has no handler, if a schema does not
// compile, or if the terminator is absent.
func NewRegistry(terminator Name, list ...*Tool) (*Registry, error) {
	r := &Registry{
		entries:    make(map[Name]*entry, len(list)),
		terminator: terminator,
	}
	for _, t := range list {
		if t == nil {
			return nil, fmt.Errorf("nil tool")
		}
		if !t.Name.Valid() {
			return nil, fmt.Errorf("unknown tool name %q", t.Name)
		}
		if _, dup := r.entries[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		if t.Handler == nil && t.Name != terminator {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}

		e := &entry{tool: t}
		if t.Parameters != nil {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters))
			if err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
			e.schema = schema
		}
		r.entries[t.Name] = e
		r.order = append(r.order, t.Name)
	}
	if _, ok := r.entries[terminator]; !ok {
		return nil, fmt.Errorf("terminator %q is not registered", terminator)
	}
	return r, nil
}

// Terminator returns the name of the run-ending tool.
func (r *Registry) Terminator() Name {
	return r.terminator
}

// IsTerminator reports whether name is this registry's terminator.
func (r *Registry) IsTerminator(name string) bool {
	return Name(name) == r.terminator
}

// Has reports whether the registry holds a tool called name.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[Name(name)]
	return ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []Name {
	out := make([]Name, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the tools in OpenAI function format, in
// registration order.
func (r *Registry) Definitions() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.entries[name].tool
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        string(t.Name),
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// Dispatch validates a model-issued call and runs its handler once.
// Unknown names yield *ErrToolUnavailable. Argument problems yield
// *ArgumentError, which callers treat as a domain failure.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (Result, error) {
	e, ok := r.entries[Name(call.Name)]
	if !ok {
		return Result{}, &ErrToolUnavailable{ToolName: call.Name}
	}
	if e.tool.Name == r.terminator {
		return Result{}, fmt.Errorf("tool %q ends the run and cannot be dispatched", call.Name)
	}

	args, err := decodeArguments(call)
	if err != nil {
		return Result{}, &ArgumentError{Tool: e.tool.Name, Problems: []string{err.Error()}}
	}
	if problems := e.validate(args); len(problems) > 0 {
		return Result{}, &ArgumentError{Tool: e.tool.Name, Problems: problems}
	}

	return e.tool.Handler(ctx, args)
}

func decodeArguments(call llm.ToolCall) (map[string]any, error) {
	if call.Arguments != nil {
		return call.Arguments, nil
	}
	raw := strings.TrimSpace(call.RawArguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func (e *entry) validate(args map[string]any) []string {
	var problems []string
	for _, field := range requiredFields(e.tool.Parameters) {
		if v, ok := args[field]; !ok || v == nil {
			problems = append(problems, "missing required field "+field)
		}
	}
	if len(problems) > 0 || e.schema == nil {
		return problems
	}

	res, err := e.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return []string{err.Error()}
	}
	for _, desc := range res.Errors() {
		problems = append(problems, desc.String())
	}
	return problems
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
