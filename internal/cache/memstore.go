package cache

import (
	"strings"
	"sync"
)

// MemStore is an in-memory Store. It backs the cache in tests and when the
// local database cannot be opened (degraded, non-durable session).
type MemStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// GetEntry returns a copy of the entry for key, or nil when absent.
func (s *MemStore) GetEntry(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	e.Body = body
	return &e, nil
}

// PutEntry stores e, replacing any previous entry with the same key.
func (s *MemStore) PutEntry(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	e.Body = body
	s.entries[e.Key] = e
	return nil
}

// DeleteEntry removes the entry for key if present.
func (s *MemStore) DeleteEntry(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteEntryPrefix removes every entry whose key starts with prefix.
func (s *MemStore) DeleteEntryPrefix(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// PurgePartition drops all entries in partition p.
func (s *MemStore) PurgePartition(p Partition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for k, e := range s.entries {
		if e.Partition == p {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// CountEntries returns the number of stored entries.
func (s *MemStore) CountEntries() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
