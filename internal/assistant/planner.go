package assistant

import (
	"log/slog"
	"strings"

	"github.com/khariha/ferris-wheel/internal/agent"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// PlannerName identifies the planning pass in logs.
const PlannerName = "planner"

// PlannerPrompt instructs the planning pass.
const PlannerPrompt = `You are a chain of thought processor. You will be given the user's query. Output step-by-step instructions for another model that will carry out the task.
Consider the most efficient course of action. Tasks include checking the user's calendar, moving meetings and finding good times to schedule events. Keep the instructions clear, concise and in order.

The executing model can call these functions, one at a time:

- try_to_remember: recalls earlier conversations with the user. It needs a detailed memory request. Do not treat it as the source of truth for the calendar.
- query_events_agent: asks the events agent to read, create, update or delete calendar events. It needs a plain-language request and handles one event per call.
- suspend_thread: ends the conversation. The system asks for it when needed, so do not include it as a step.

Make the last step returning an assistant response to the user. Remind the model to check the system messages in its context so it does not repeat steps.`

// NewPlanner builds the planning pass: one completion at temperature 0
// with no tools offered, so it is metered as an auxiliary call.
func NewPlanner(logger *slog.Logger, client llm.Client, model string) (*agent.Engine, error) {
	reg, err := tools.NewRegistry(tools.SuspendThread, tools.Terminator(tools.SuspendThread))
	if err != nil {
		return nil, err
	}
	return agent.New(logger, client, agent.Config{
		Name:          PlannerName,
		Model:         model,
		Preamble:      PlannerPrompt,
		Tools:         reg,
		MaxIterations: 1,
		Temperature:   llm.Temperature(0),
		WithholdTools: true,
	})
}

// PlanNote renders planner output as a system note for the top-level run.
func PlanNote(plan string) string {
	return "###PLAN: Follow these steps to handle the user's request.\n" + strings.TrimSpace(plan)
}
