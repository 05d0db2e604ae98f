package securitylog

import (
	"context"
	"sync"
)

// MemoryStore is the process-local Store. Entries reset on restart, which is
// an accepted limitation of this backend; production deployments point the
// Recorder at durable storage instead.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory security log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEntry(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// QueryByAccount returns the account's entries newest first, capped at limit.
func (s *MemoryStore) QueryByAccount(_ context.Context, accountID string, limit int) ([]Entry, error) {
	return s.query(func(e Entry) bool { return e.AccountID == accountID }, limit)
}

// QueryByAction returns entries with the given action tag newest first,
// capped at limit.
func (s *MemoryStore) QueryByAction(_ context.Context, action string, limit int) ([]Entry, error) {
	return s.query(func(e Entry) bool { return e.Action == action }, limit)
}

func (s *MemoryStore) query(match func(Entry) bool, limit int) ([]Entry, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if match(s.entries[i]) {
			result = append(result, s.entries[i])
		}
	}
	return result, nil
}

// Len returns the total number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
