package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/khariha/ferris-wheel/internal/tools"
)

// Tools returns the calendar tools backed by svc. The client is taken
// from the context, so the model can only reach the caller's events.
func Tools(svc *Service) []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        tools.GetClientEvents,
			Description: "Fetches all events of the current client.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: svc.handleGet,
		},
		{
			Name:        tools.AddClientEvent,
			Description: "Adds a new event to the client's calendar.",
			Parameters:  addSchema(),
			Handler:     svc.handleAdd,
		},
		{
			Name:        tools.UpdateClientEvent,
			Description: "Updates an existing event in the client's calendar. Only the supplied fields change.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uuid": map[string]any{
						"type":        "string",
						"description": "The unique identifier of the event to be updated.",
					},
					"updateFields": map[string]any{
						"type":                 "object",
						"description":          "The fields to change.",
						"properties":           eventFieldSchemas(),
						"additionalProperties": false,
					},
				},
				"required": []string{"uuid", "updateFields"},
			},
			Handler: svc.handleUpdate,
		},
		{
			Name:        tools.DeleteClientEvent,
			Description: "Deletes an event from the client's calendar.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uuid": map[string]any{
						"type":        "string",
						"description": "The unique identifier of the event to be deleted.",
					},
				},
				"required": []string{"uuid"},
			},
			Handler: svc.handleDelete,
		},
	}
}

func eventFieldSchemas() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	nullableStr := func(desc string) map[string]any {
		return map[string]any{"type": []string{"string", "null"}, "description": desc}
	}
	return map[string]any{
		"title":       str("The title or name of the event."),
		"date":        str("The date of the event in YYYY-MM-DD format."),
		"start_time":  nullableStr("The start time in HH:MM format (24-hour). Omit or null for all-day events."),
		"end_time":    nullableStr("The end time in HH:MM format (24-hour). Omit or null for all-day events."),
		"location":    str("Where the event takes place."),
		"description": str("A brief description of the event."),
		"collaborators": map[string]any{
			"type":        "array",
			"description": "People involved in the event.",
			"items": map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": str("The name of the collaborator.")},
				"required":   []string{"name"},
			},
		},
		"reminders": map[string]any{
			"type":        "array",
			"description": "Reminders set for the event.",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_before": str("How long before the event the reminder triggers, e.g. '15m', '1h', '1d'."),
					"method":      str("How the reminder is delivered, e.g. 'popup', 'email'."),
				},
				"required": []string{"time_before", "method"},
			},
		},
		"all_day": map[string]any{
			"type":        "boolean",
			"description": "Whether the event lasts all day. All-day events have no start or end time.",
		},
	}
}

func addSchema() map[string]any {
	props := eventFieldSchemas()
	props["uuid"] = map[string]any{
		"type":        "string",
		"description": "A unique identifier for the event. Generated when omitted.",
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"title", "date"},
	}
}

// domain marks rule violations so the loop reports them to the model.
func domain(err error) error {
	if IsDomain(err) {
		return tools.DomainError(err)
	}
	return err
}

func (s *Service) handleGet(ctx context.Context, _ map[string]any) (tools.Result, error) {
	clientID := tools.ClientIDFromContext(ctx)
	events, err := s.List(ctx, clientID)
	if err != nil {
		return tools.Result{}, err
	}

	var sb strings.Builder
	if len(events) == 0 {
		fmt.Fprintf(&sb, "No events were found for client %s.", clientID)
	} else {
		fmt.Fprintf(&sb, "Events for client %s:", clientID)
		for _, e := range events {
			sb.WriteString("\n- ")
			sb.WriteString(e.Summary())
		}
	}
	fmt.Fprintf(&sb, "\n\n###INSTRUCTION: If you are seeing this message that means you've successfully performed a get_client_events function for client %s. "+
		"Do not call the 'get_client_events' function again unless instructed. Proceed with the requested action, or return an assistant response answering the user's query.", clientID)
	return tools.Result{Note: sb.String()}, nil
}

func (s *Service) handleAdd(ctx context.Context, args map[string]any) (tools.Result, error) {
	clientID := tools.ClientIDFromContext(ctx)
	draft, err := EventFromArgs(args)
	if err != nil {
		return tools.Result{}, domain(err)
	}
	e, err := s.Create(ctx, clientID, draft)
	if err != nil {
		return tools.Result{}, domain(err)
	}
	return tools.Result{Note: confirmation("Successfully created a new event", clientID, e)}, nil
}

func (s *Service) handleUpdate(ctx context.Context, args map[string]any) (tools.Result, error) {
	clientID := tools.ClientIDFromContext(ctx)
	id, _ := tools.StringArg(args, "uuid")
	fields, err := tools.ObjectArg(args, "updateFields")
	if err != nil {
		return tools.Result{}, tools.DomainError(err)
	}
	p, err := PatchFromArgs(fields)
	if err != nil {
		return tools.Result{}, domain(err)
	}
	e, err := s.Update(ctx, clientID, id, p)
	if err != nil {
		return tools.Result{}, domain(err)
	}
	return tools.Result{Note: confirmation("Successfully updated the event", clientID, e)}, nil
}

func (s *Service) handleDelete(ctx context.Context, args map[string]any) (tools.Result, error) {
	clientID := tools.ClientIDFromContext(ctx)
	id, _ := tools.StringArg(args, "uuid")
	e, err := s.Delete(ctx, clientID, id)
	if err != nil {
		return tools.Result{}, domain(err)
	}
	return tools.Result{Note: confirmation("Successfully deleted the event", clientID, e)}, nil
}

func confirmation(action, clientID string, e Event) string {
	return fmt.Sprintf("###INSTRUCTION: %s for client %s.\n\n%s\n\n"+
		"Do not call the 'get_client_events' function again unless instructed. "+
		"Return an assistant response confirming your action for the user, then call '%s' if nothing else is needed.",
		action, clientID, e.Details(), tools.SuspendThread)
}
