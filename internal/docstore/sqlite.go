// Package docstore holds the document-store backends for calendar events
// and conversation records: SQLite for single-host deployments and
// MongoDB for shared ones.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/memory"
)

// SQLite stores events and conversations in one database. Events are
// partitioned by client_id. All methods are safe for concurrent use.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ calendar.Store           = (*SQLite)(nil)
	_ memory.ConversationStore = (*SQLite)(nil)
)

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open connection and creates the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("document store migrate: %w", err)
	}
	return s, nil
}

// DB exposes the connection so other stores can share the file.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			client_id     TEXT NOT NULL,
			id            TEXT NOT NULL,
			title         TEXT NOT NULL,
			date          TEXT NOT NULL,
			start_time    TEXT,
			end_time      TEXT,
			location      TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			collaborators TEXT NOT NULL DEFAULT '[]',
			reminders     TEXT NOT NULL DEFAULT '[]',
			all_day       BOOLEAN NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (client_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_client_date
			ON events(client_id, date);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			client_id  TEXT NOT NULL,
			messages   TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_client
			ON conversations(client_id, created_at);
	`)
	return err
}

const eventColumns = `id, title, date, start_time, end_time, location, description,
	collaborators, reminders, all_day`

// List implements [calendar.Store]. Events come back in insertion order.
func (s *SQLite) List(ctx context.Context, clientID string) ([]calendar.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE client_id = ? ORDER BY created_at, rowid`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []calendar.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Get implements [calendar.Store].
func (s *SQLite) Get(ctx context.Context, clientID, id string) (calendar.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE client_id = ? AND id = ?`, clientID, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Event{}, &calendar.NotFoundError{ID: id}
	}
	return e, err
}

// Insert implements [calendar.Store].
func (s *SQLite) Insert(ctx context.Context, clientID string, e calendar.Event) error {
	collab, reminders, err := encodeLists(e)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			client_id, id, title, date, start_time, end_time, location, description,
			collaborators, reminders, all_day, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clientID, e.ID, e.Title, e.Date, nullString(e.StartTime), nullString(e.EndTime),
		e.Location, e.Description, collab, reminders, e.AllDay, now, now,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("event with UUID %s: %w", e.ID, calendar.ErrDuplicate)
	}
	return err
}

// Update implements [calendar.Store].
func (s *SQLite) Update(ctx context.Context, clientID string, e calendar.Event) error {
	collab, reminders, err := encodeLists(e)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			title = ?, date = ?, start_time = ?, end_time = ?, location = ?, description = ?,
			collaborators = ?, reminders = ?, all_day = ?, updated_at = ?
		WHERE client_id = ? AND id = ?`,
		e.Title, e.Date, nullString(e.StartTime), nullString(e.EndTime), e.Location, e.Description,
		collab, reminders, e.AllDay, s.now().UTC().Format(time.RFC3339Nano),
		clientID, e.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, e.ID)
}

// Delete implements [calendar.Store].
func (s *SQLite) Delete(ctx context.Context, clientID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE client_id = ? AND id = ?`, clientID, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// InsertConversation implements [memory.ConversationStore].
func (s *SQLite) InsertConversation(ctx context.Context, rec memory.ConversationRecord) error {
	msgs, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, client_id, messages, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.ClientID, string(msgs), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Conversations implements [memory.ConversationStore].
func (s *SQLite) Conversations(ctx context.Context, clientID string) ([]memory.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, messages, created_at FROM conversations
		 WHERE client_id = ? ORDER BY created_at, rowid`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	recs := []memory.ConversationRecord{}
	for rows.Next() {
		var rec memory.ConversationRecord
		var msgs, created string
		if err := rows.Scan(&rec.ID, &rec.ClientID, &msgs, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(msgs), &rec.Messages); err != nil {
			return nil, fmt.Errorf("conversation %s messages: %w", rec.ID, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (calendar.Event, error) {
	var e calendar.Event
	var start, end sql.NullString
	var collab, reminders string
	err := sc.Scan(&e.ID, &e.Title, &e.Date, &start, &end, &e.Location, &e.Description,
		&collab, &reminders, &e.AllDay)
	if err != nil {
		return calendar.Event{}, err
	}
	if start.Valid {
		e.StartTime = &start.String
	}
	if end.Valid {
		e.EndTime = &end.String
	}
	if err := json.Unmarshal([]byte(collab), &e.Collaborators); err != nil {
		return calendar.Event{}, fmt.Errorf("event %s collaborators: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(reminders), &e.Reminders); err != nil {
		return calendar.Event{}, fmt.Errorf("event %s reminders: %w", e.ID, err)
	}
	return e, nil
}

func encodeLists(e calendar.Event) (collab, reminders string, err error) {
	c := e.Collaborators
	if c == nil {
		c = []calendar.Collaborator{}
	}
	r := e.Reminders
	if r == nil {
		r = []calendar.Reminder{}
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("marshal collaborators: %w", err)
	}
	rb, err := json.Marshal(r)
	if err != nil {
		return "", "", fmt.Errorf("marshal reminders: %w", err)
	}
	return string(cb), string(rb), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &calendar.NotFoundError{ID: id}
	}
	return nil
}
