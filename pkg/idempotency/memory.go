package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used when no database is configured
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

// Claim implements Store
func (m *MemoryStore) Claim(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[e.Key]; ok {
		if existing.Status != StatusRecoverable {
			return ErrDuplicateMessage
		}
		existing.Status = StatusStarted
		existing.UpdatedAt = m.now()
		return nil
	}
	e.Status = StatusStarted
	m.entries[e.Key] = &e
	return nil
}

// Mark implements Store
func (m *MemoryStore) Mark(_ context.Context, key string, status Status, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		e.Status = status
		if result != nil {
			e.Result = result
		}
		e.UpdatedAt = m.now()
	}
	return nil
}

// RecoverStale implements Store
func (m *MemoryStore) RecoverStale(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	cutoff := m.now().Add(-olderThan)
	for _, e := range m.entries {
		if e.Status == StatusStarted && e.UpdatedAt.Before(cutoff) {
			e.Status = StatusRecoverable
			e.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements Store
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if e.ExpiresAt.Before(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Stats implements Store
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Total: int64(len(m.entries))}
	for _, e := range m.entries {
		switch e.Status {
		case StatusStarted:
			st.Started++
		case StatusFinished:
			st.Finished++
		case StatusRecoverable:
			st.Recoverable++
		case StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}
