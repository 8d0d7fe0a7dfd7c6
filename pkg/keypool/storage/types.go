package storage

import (
	"context"
	"errors"
	"time"
)

// Backend is the persistence interface the pool depends on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// LoadAll returns every key row in the store. Called at pool
	// construction and on registry refresh.
	LoadAll(ctx context.Context) ([]KeyRow, error)

	// SaveKeyState writes back one key's penalty state after a
	// reported outcome. The write is best-effort from the pool's point
	// of view: failures are logged by the caller, never propagated.
	SaveKeyState(ctx context.Context, id string, strikes int, cooldownUntil time.Time) error

	// Close releases resources held by the backend.
	Close() error
}

// KeyRow is one credential as stored. Quota windows are not part of
// the row; they are session state owned by the pool.
type KeyRow struct {
	// ID is the stable key identifier (a name, not the secret).
	ID string

	// Secret is the credential string handed to callers. It must never
	// be written to logs in full.
	Secret string

	// Tier is the capability tier name the key belongs to.
	Tier string

	// Priority orders checkout scans; lower is tried first.
	Priority int

	// Strikes is the persisted consecutive-failure count.
	Strikes int

	// CooldownUntil is the persisted suspension expiry. The zero time
	// means the key is not cooling down.
	CooldownUntil time.Time
}

// Store errors.
var (
	// ErrKeyNotFound is returned when an operation targets a key id
	// that has no row.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned when inserting a key id that already
	// has a row.
	ErrDuplicateKey = errors.New("key already exists")
)
