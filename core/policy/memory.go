package policy

import (
	"context"
	"sync"
)

const (
	maxSeenIDs = 10000
	pruneCount = 1000
)

// MemoryStore is a bounded in-process SeenStore. When full it forgets the
// oldest ids first.
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	seenOrder []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

// MarkSeen records id and reports whether it was new.
func (s *MemoryStore) MarkSeen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[id] {
		return false, nil
	}

	// Prune oldest entries if at capacity.
	if len(s.seen) >= maxSeenIDs {
		n := min(pruneCount, len(s.seenOrder))
		for _, old := range s.seenOrder[:n] {
			delete(s.seen, old)
		}
		s.seenOrder = s.seenOrder[n:]
	}

	s.seen[id] = true
	s.seenOrder = append(s.seenOrder, id)
	return true, nil
}
