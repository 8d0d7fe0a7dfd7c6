package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// auditSchema is the append-only journal table. Times are stored as
// Unix nanoseconds so range filters are plain integer comparisons.
const auditSchema = `
CREATE TABLE IF NOT EXISTS events (
	id      TEXT PRIMARY KEY,
	time    INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	key_id  TEXT NOT NULL DEFAULT '',
	tier    TEXT NOT NULL DEFAULT '',
	tokens  INTEGER NOT NULL DEFAULT 0,
	strikes INTEGER NOT NULL DEFAULT 0,
	detail  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_key ON events(key_id);
`

// SQLiteStore is a Store backed by a SQLite journal file. The journal
// lives in its own database, separate from key state.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the journal database at
// the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("audit store path must not be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Append writes one event.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, time, kind, key_id, tier, tokens, strikes, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixNano(), string(e.Kind), e.KeyID, e.Tier, e.Tokens, e.Strikes, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	where, args := buildWhereClause(f)

	query := "SELECT id, time, kind, key_id, tier, tokens, strikes, detail FROM events"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY time DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var nanos int64
		var kind string
		if err := rows.Scan(&e.ID, &nanos, &kind, &e.KeyID, &e.Tier, &e.Tokens, &e.Strikes, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = time.Unix(0, nanos)
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	return events, nil
}

// Close closes the journal database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the journal file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// buildWhereClause builds a SQL WHERE clause from filter fields.
// Returns the clause (without the WHERE keyword) and its arguments.
func buildWhereClause(f Filter) (string, []any) {
	var conditions []string
	var args []any

	if f.KeyID != "" {
		conditions = append(conditions, "key_id = ?")
		args = append(args, f.KeyID)
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "time >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "time <= ?")
		args = append(args, f.Until.UnixNano())
	}

	where := ""
	for i, c := range conditions {
		if i > 0 {
			where += " AND "
		}
		where += c
	}
	return where, args
}
