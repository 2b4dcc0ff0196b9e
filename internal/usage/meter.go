package usage

import (
	"context"
	"log/slog"

	"github.com/khariha/ferris-wheel/internal/config"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/tools"
)

// Meter is an [llm.Client] that records every successful completion in
// a Store. The client is taken from the request context, so completions
// made outside an agent run are recorded under an empty client.
type Meter struct {
	next    llm.Client
	store   *Store
	pricing map[string]config.PricingEntry
	logger  *slog.Logger
}

// NewMeter wraps next.
func NewMeter(next llm.Client, store *Store, pricing map[string]config.PricingEntry, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{
		next:    next,
		store:   store,
		pricing: pricing,
		logger:  logger.With("component", "usage"),
	}
}

// Chat forwards req and records the tokens it used. A ledger failure is
// logged and does not fail the completion.
func (m *Meter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := m.next.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	kind := KindAgent
	if len(req.Tools) == 0 {
		kind = KindAuxiliary
	}
	rec := Record{
		ClientID:     tools.ClientIDFromContext(ctx),
		Model:        model,
		Kind:         kind,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		// Priced by the requested name; providers often report a dated variant.
		CostUSD: ComputeCost(req.Model, resp.InputTokens, resp.OutputTokens, m.pricing),
	}
	if err := m.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Warn("usage record failed", "client_id", rec.ClientID, "model", model, "error", err)
	}
	return resp, nil
}

// Ping forwards to the wrapped client.
func (m *Meter) Ping(ctx context.Context) error {
	return m.next.Ping(ctx)
}
