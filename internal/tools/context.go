package tools

import "context"

type contextKey string

const (
	clientIDKey  contextKey = "client_id"
	iterationKey contextKey = "iteration"
)

// WithClientID adds the client identifier to the context. Handlers scope
// every storage access by it.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientIDFromContext extracts the client identifier. Returns "" if unset.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}

// WithIteration records the 1-based loop iteration that issued the call.
func WithIteration(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, iterationKey, n)
}

// IterationFromContext returns the loop iteration, or 0 outside a loop.
func IterationFromContext(ctx context.Context) int {
	n, _ := ctx.Value(iterationKey).(int)
	return n
}
