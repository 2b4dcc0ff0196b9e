package calendar

import (
	"log/slog"
	"time"

	"github.com/khariha/ferris-wheel/internal/agent"
	"github.com/khariha/ferris-wheel/internal/conditions"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// AgentName identifies the calendar sub-agent in logs and delegation
// records.
const AgentName = "calendar"

// Preamble instructs the calendar sub-agent.
const Preamble = `You are the events agent. You can create, read, update and delete events in the user's calendar.

Always start by calling the get_client_events function to get the user's events. Then proceed with the desired action.
Dates use the YYYY-MM-DD format and times use HH:MM (24-hour). Resolve relative dates such as "tomorrow" against the current conditions below.
Use the event UUIDs returned by get_client_events when updating or deleting.

End your work by returning a non-function response confirming the action taken. Then suspend the thread by calling the suspend_thread function.`

// AgentConfig parameterizes the calendar sub-agent.
type AgentConfig struct {
	Model         string
	MaxIterations int
	Timezone      string
	Now           func() time.Time // defaults to time.Now
}

// NewAgent builds the calendar sub-agent over svc.
func NewAgent(logger *slog.Logger, client llm.Client, svc *Service, cfg AgentConfig) (*agent.Engine, error) {
	list := append(Tools(svc), tools.Terminator(tools.SuspendThread))
	reg, err := tools.NewRegistry(tools.SuspendThread, list...)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tz := cfg.Timezone

	return agent.New(logger, client, agent.Config{
		Name:          AgentName,
		Model:         cfg.Model,
		Preamble:      Preamble,
		Tools:         reg,
		MaxIterations: cfg.MaxIterations,
		Conditions:    func() string { return conditions.Render(now(), tz) },
	})
}
