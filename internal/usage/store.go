// Package usage keeps an append-only ledger of completion token usage
// and cost, per client and model.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khariha/ferris-wheel/internal/config"
)

// Kinds of completion.
const (
	KindAgent     = "agent"     // a tool-calling loop iteration
	KindAuxiliary = "auxiliary" // a plain completion such as a memory rewrite
)

// Record is one completion's token usage and cost.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ClientID     string    `json:"clientUUID"`
	Model        string    `json:"model"`
	Kind         string    `json:"kind"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// Summary holds aggregated token usage and cost totals.
type Summary struct {
	TotalRecords      int     `json:"records"`
	TotalInputTokens  int64   `json:"input_tokens"`
	TotalOutputTokens int64   `json:"output_tokens"`
	TotalCostUSD      float64 `json:"cost_usd"`
}

// Store is the usage ledger. It shares a database handle with the
// document store. All public methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore creates the usage schema on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		client_id     TEXT NOT NULL,
		model         TEXT NOT NULL,
		kind          TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd      REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_client_time ON usage_records(client_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends rec. An empty ID gets a UUIDv7 and a zero Timestamp
// gets the current time.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, client_id, model, kind, input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		timeKey(rec.Timestamp),
		rec.ClientID,
		rec.Model,
		rec.Kind,
		rec.InputTokens,
		rec.OutputTokens,
		rec.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns clientID's totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, clientID string, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_records
		 WHERE client_id = ? AND timestamp >= ? AND timestamp < ?`,
		clientID, timeKey(start), timeKey(end),
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByModel returns clientID's per-model totals within [start, end).
func (s *Store) SummaryByModel(ctx context.Context, clientID string, start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "model", clientID, start, end)
}

// SummaryByKind returns clientID's per-kind totals within [start, end).
func (s *Store) SummaryByKind(ctx context.Context, clientID string, start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "kind", clientID, start, end)
}

func (s *Store) summaryGroupedBy(ctx context.Context, column, clientID string, start, end time.Time) (map[string]*Summary, error) {
	// column is always a constant from this file, never user input.
	query := fmt.Sprintf(
		`SELECT %s, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_records
		 WHERE client_id = ? AND timestamp >= ? AND timestamp < ?
		 GROUP BY %s`,
		column, column,
	)

	rows, err := s.db.QueryContext(ctx, query, clientID, timeKey(start), timeKey(end))
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		var sum Summary
		if err := rows.Scan(&key, &sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan usage by %s: %w", column, err)
		}
		result[key] = &sum
	}
	return result, rows.Err()
}

// timeKey formats t so that string order matches time order.
func timeKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// ComputeCost prices a completion from the pricing table. Models not in
// the table cost nothing.
func ComputeCost(model string, inputTokens, outputTokens int, pricing map[string]config.PricingEntry) float64 {
	entry, ok := pricing[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens) / 1_000_000.0 * entry.InputPerMillion
	cost += float64(outputTokens) / 1_000_000.0 * entry.OutputPerMillion
	return cost
}
