package audit

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity bounds the in-memory journal when no capacity
// is given.
const DefaultMemoryCapacity = 1024

// MemoryStore is an in-memory Store holding the most recent events in
// a capped ring. Used in tests and by the simulation harness.
type MemoryStore struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

// NewMemoryStore creates a memory store keeping at most capacity
// events. Non-positive capacity uses DefaultMemoryCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append writes one event, evicting the oldest when full.
func (s *MemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	if len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	matched := []Event{}
	for i := len(s.events) - 1; i >= 0 && len(matched) < limit; i-- {
		e := s.events[i]
		if f.KeyID != "" && e.KeyID != f.KeyID {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Time.After(f.Until) {
			continue
		}
		matched = append(matched, e)
	}
	return matched, nil
}

// Len returns the number of retained events.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
