package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Backend with an in-process map. Nothing
// survives the process; it exists for tests, simulations, and
// deployments that provision keys at startup.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	rows map[string]KeyRow
	mu   sync.RWMutex
}

// NewMemoryStore creates a memory store pre-populated with rows.
func NewMemoryStore(rows ...KeyRow) *MemoryStore {
	m := &MemoryStore{rows: make(map[string]KeyRow, len(rows))}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

// LoadAll returns copies of every row, ordered by tier then priority
// then id to match the SQLite store.
func (m *MemoryStore) LoadAll(ctx context.Context) ([]KeyRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]KeyRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveKeyState updates one row's penalty state.
func (m *MemoryStore) SaveKeyState(ctx context.Context, id string, strikes int, cooldownUntil time.Time) error {
	if id == "" {
		return fmt.Errorf("key id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrKeyNotFound
	}
	row.Strikes = strikes
	row.CooldownUntil = cooldownUntil
	m.rows[id] = row
	return nil
}

// InsertKey adds a row. Returns ErrDuplicateKey if the id exists.
func (m *MemoryStore) InsertKey(ctx context.Context, row KeyRow) error {
	if row.ID == "" {
		return fmt.Errorf("key id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[row.ID]; ok {
		return ErrDuplicateKey
	}
	m.rows[row.ID] = row
	return nil
}

// RemoveKey deletes a row. Returns ErrKeyNotFound if absent.
func (m *MemoryStore) RemoveKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[id]; !ok {
		return ErrKeyNotFound
	}
	delete(m.rows, id)
	return nil
}

// ResetPenalty clears a row's strikes and cooldown.
func (m *MemoryStore) ResetPenalty(ctx context.Context, id string) error {
	return m.SaveKeyState(ctx, id, 0, time.Time{})
}

// Get returns a copy of one row. Useful in tests asserting what the
// pool persisted.
func (m *MemoryStore) Get(id string) (KeyRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	return row, ok
}

// Size returns the number of stored rows.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
