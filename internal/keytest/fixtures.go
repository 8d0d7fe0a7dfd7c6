// Package keytest provides shared fixtures for tests that need a
// populated key store or a ready-made pool: row builders, seeded
// memory and SQLite stores, fast escalation schedules, and a polling
// helper for asynchronous assertions.
package keytest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"workbench-hq/keywarden/pkg/keypool"
	"workbench-hq/keywarden/pkg/keypool/cooldown"
	"workbench-hq/keywarden/pkg/keypool/storage"
)

// Row builds a key row with a deterministic secret derived from the
// id, so tests can predict the last-4 suffix shown in status output.
func Row(id string, tier keypool.Tier, priority int) storage.KeyRow {
	return storage.KeyRow{
		ID:       id,
		Secret:   "sk-test-" + id,
		Tier:     tier.String(),
		Priority: priority,
	}
}

// Rows builds n equal-priority rows for one tier, with ids
// "<tier>-key-1" through "<tier>-key-n".
func Rows(tier keypool.Tier, n, priority int) []storage.KeyRow {
	rows := make([]storage.KeyRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, Row(fmt.Sprintf("%s-key-%d", tier, i), tier, priority))
	}
	return rows
}

// MemoryStore returns a memory-backed store seeded with the rows.
func MemoryStore(rows ...storage.KeyRow) *storage.MemoryStore {
	return storage.NewMemoryStore(rows...)
}

// SQLiteStore creates a SQLite store in a test-scoped temp directory,
// seeds it with the rows, and closes it when the test ends.
func SQLiteStore(t *testing.T, rows ...storage.KeyRow) *storage.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keys.db")
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, row := range rows {
		if err := store.InsertKey(ctx, row); err != nil {
			t.Fatalf("failed to seed key %s: %v", row.ID, err)
		}
	}
	return store
}

// WideLimits returns limits generous enough that no quota dimension
// interferes with the behavior under test.
func WideLimits() map[keypool.Tier]keypool.TierLimits {
	limits := make(map[keypool.Tier]keypool.TierLimits, len(keypool.AllTiers()))
	for _, tier := range keypool.AllTiers() {
		limits[tier] = keypool.TierLimits{
			RequestsPerMinute: 1_000_000,
			TokensPerMinute:   1_000_000_000,
			RequestsPerDay:    1_000_000,
		}
	}
	return limits
}

// FastEscalation returns a millisecond-scale schedule so cooldown
// expiry can be exercised with real sleeps instead of hour waits.
func FastEscalation() cooldown.Schedule {
	return cooldown.Schedule{
		Steps:      []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		MaxStrikes: 5,
		HardBlock:  time.Hour,
	}
}

// NewPool builds a pool over the store with wide limits and fast
// escalation, failing the test on construction errors. The pool is
// closed when the test ends.
func NewPool(t *testing.T, store storage.Backend) *keypool.Pool {
	t.Helper()

	pool, err := keypool.New(keypool.Config{
		Store:      store,
		Tiers:      WideLimits(),
		Escalation: FastEscalation(),
	})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// WaitForCondition polls until the condition holds or the timeout
// passes. Use it for asynchronous effects such as journal writes and
// watcher-triggered refreshes.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}
		<-ticker.C
	}
}
