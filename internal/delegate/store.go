package delegate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one persisted delegation.
type Record struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	Agent         string    `json:"agent"`
	Task          string    `json:"task"`
	Iterations    int       `json:"iterations"`
	MaxIterations int       `json:"max_iterations"`
	Exhausted     bool      `json:"exhausted"`
	Terminated    bool      `json:"terminated"`
	Result        string    `json:"result"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

// Store persists delegation records. It shares the document store's
// [sql.DB] and creates its own table on initialization.
type Store struct {
	db *sql.DB
}

// NewStore creates a delegation store on db, creating the delegations
// table if it does not already exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("delegation store migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS delegations (
			id             TEXT PRIMARY KEY,
			client_id      TEXT NOT NULL,
			agent          TEXT NOT NULL,
			task           TEXT NOT NULL,
			iterations     INTEGER NOT NULL,
			max_iterations INTEGER NOT NULL,
			exhausted      BOOLEAN NOT NULL DEFAULT 0,
			terminated     BOOLEAN NOT NULL DEFAULT 0,
			result         TEXT,
			started_at     TEXT NOT NULL,
			completed_at   TEXT NOT NULL,
			duration_ms    INTEGER NOT NULL,
			error          TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_delegations_client
			ON delegations(client_id, started_at DESC);
	`)
	return err
}

// Record inserts a delegation record.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delegations (
			id, client_id, agent, task, iterations, max_iterations,
			exhausted, terminated, result, started_at, completed_at, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ClientID, rec.Agent, rec.Task,
		rec.Iterations, rec.MaxIterations,
		rec.Exhausted, rec.Terminated, rec.Result,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMs, rec.Error,
	)
	return err
}

// Recent returns a client's delegation records, newest first. A limit of
// 0 returns all of them.
func (s *Store) Recent(ctx context.Context, clientID string, limit int) ([]*Record, error) {
	query := `
		SELECT id, client_id, agent, task, iterations, max_iterations,
			exhausted, terminated, result, started_at, completed_at, duration_ms, error
		FROM delegations WHERE client_id = ? ORDER BY started_at DESC, rowid DESC`
	args := []any{clientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		var rec Record
		var result, errStr sql.NullString
		var startedAt, completedAt string
		err := rows.Scan(
			&rec.ID, &rec.ClientID, &rec.Agent, &rec.Task,
			&rec.Iterations, &rec.MaxIterations,
			&rec.Exhausted, &rec.Terminated, &result,
			&startedAt, &completedAt, &rec.DurationMs, &errStr,
		)
		if err != nil {
			return nil, err
		}
		rec.Result = result.String
		rec.Error = errStr.String
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
