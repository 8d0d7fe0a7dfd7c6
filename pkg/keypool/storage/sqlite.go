package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Backend using a SQLite database file.
// It is the normal deployment backend: key rows survive restarts, and
// out-of-band writers (the CLI, provisioning scripts) can add or
// remove keys while a pool process is running.
//
// The store opens the database in WAL mode and checkpoints it
// periodically in the background.
type SQLiteStore struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	// Prepared statements, compiled once at open.
	loadAllStmt   *sql.Stmt
	saveStateStmt *sql.Stmt
	insertStmt    *sql.Stmt
	removeStmt    *sql.Stmt
	resetStmt     *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes.
	CheckpointInterval time.Duration
}

// NewSQLiteStore opens (creating if needed) the key database at path
// with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens the key database with custom settings.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:                 db,
		dbPath:             cfg.Path,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go store.checkpointLoop()

	return store, nil
}

// initSchema creates the key table if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		secret TEXT NOT NULL,
		tier TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 100,
		strikes INTEGER NOT NULL DEFAULT 0,
		cooldown_until INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_api_keys_tier ON api_keys(tier);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.loadAllStmt, err = s.db.Prepare(`
		SELECT id, secret, tier, priority, strikes, cooldown_until
		FROM api_keys
		ORDER BY tier, priority, id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.saveStateStmt, err = s.db.Prepare(`
		UPDATE api_keys
		SET strikes = ?, cooldown_until = ?, updated_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.insertStmt, err = s.db.Prepare(`
		INSERT OR IGNORE INTO api_keys
			(id, secret, tier, priority, strikes, cooldown_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.removeStmt, err = s.db.Prepare(`
		DELETE FROM api_keys WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove statement: %w", err)
	}

	s.resetStmt, err = s.db.Prepare(`
		UPDATE api_keys SET strikes = 0, cooldown_until = 0, updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare reset statement: %w", err)
	}

	return nil
}

// LoadAll returns every key row, ordered by tier then priority.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]KeyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.loadAllStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	defer rows.Close()

	var out []KeyRow
	for rows.Next() {
		var (
			row      KeyRow
			cooldown int64
		)
		if err := rows.Scan(&row.ID, &row.Secret, &row.Tier, &row.Priority, &row.Strikes, &cooldown); err != nil {
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		if cooldown > 0 {
			row.CooldownUntil = time.Unix(cooldown, 0)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key rows: %w", err)
	}

	return out, nil
}

// SaveKeyState writes one key's penalty columns.
// Returns ErrKeyNotFound if the row was removed out-of-band.
func (s *SQLiteStore) SaveKeyState(ctx context.Context, id string, strikes int, cooldownUntil time.Time) error {
	if id == "" {
		return fmt.Errorf("key id cannot be empty")
	}

	var cooldown int64
	if !cooldownUntil.IsZero() {
		cooldown = cooldownUntil.Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.saveStateStmt.ExecContext(ctx, strikes, cooldown, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to save key state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// InsertKey adds a new key row. Returns ErrDuplicateKey if the id is
// already present.
func (s *SQLiteStore) InsertKey(ctx context.Context, row KeyRow) error {
	if row.ID == "" {
		return fmt.Errorf("key id cannot be empty")
	}
	if row.Secret == "" {
		return fmt.Errorf("key secret cannot be empty")
	}
	if row.Tier == "" {
		return fmt.Errorf("key tier cannot be empty")
	}

	var cooldown int64
	if !row.CooldownUntil.IsZero() {
		cooldown = row.CooldownUntil.Unix()
	}
	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.insertStmt.ExecContext(ctx,
		row.ID, row.Secret, row.Tier, row.Priority, row.Strikes, cooldown, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateKey
	}

	return nil
}

// RemoveKey deletes a key row. Returns ErrKeyNotFound if absent.
func (s *SQLiteStore) RemoveKey(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("key id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.removeStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// ResetPenalty clears a key's strikes and cooldown, making it
// immediately eligible on the next registry refresh.
func (s *SQLiteStore) ResetPenalty(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("key id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.resetStmt.ExecContext(ctx, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to reset key penalty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// Path returns the database file path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close releases the database and stops the checkpoint goroutine.
// Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.loadAllStmt, s.saveStateStmt, s.insertStmt, s.removeStmt, s.resetStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
