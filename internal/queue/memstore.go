package queue

import (
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and for the degraded mode where
// the local database is unavailable (queue survives the session only).
type MemStore struct {
	mu      sync.Mutex
	nextSeq int64
	ops     map[string]Operation
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{ops: make(map[string]Operation)}
}

// InsertOp stores op and assigns the next sequence number.
func (s *MemStore) InsertOp(op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	op.Seq = s.nextSeq
	s.ops[op.ID] = *op
	return nil
}

// GetOp returns the operation with the given id, or nil.
func (s *MemStore) GetOp(id string) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

// ListOps returns matching operations ordered by Seq ascending.
func (s *MemStore) ListOps(f Filter) ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Operation
	for _, op := range s.ops {
		if f.EntityType != "" && op.EntityType != f.EntityType {
			continue
		}
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// UpdateOp replaces the stored operation with the same id.
func (s *MemStore) UpdateOp(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op
	return nil
}

// DeleteOp removes the operation with the given id if present.
func (s *MemStore) DeleteOp(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, id)
	return nil
}
