package core

import (
	"errors"
	"sync"
)

// ErrHandlerRegistered is returned when adding a handler that is already
// in the registry.
var ErrHandlerRegistered = errors.New("handler already registered")

// entry is a registered handler with its registration index.
type entry struct {
	handler *Handler
	index   int
}

// Registry holds handlers in registration order. Mutations replace the
// backing slice, so a snapshot taken by a dispatch is never modified.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	next    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends h and returns its registration index. Indexes increase
// monotonically and are never reused, even after Remove.
func (r *Registry) Add(h *Handler) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.handler == h {
			return 0, ErrHandlerRegistered
		}
	}

	idx := r.next
	r.next++

	entries := make([]entry, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, entry{handler: h, index: idx})
	return idx, nil
}

// Remove deletes h by identity. Remaining handlers keep their order and
// indexes. It reports whether h was present.
func (r *Registry) Remove(h *Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.handler != h {
			continue
		}
		entries := make([]entry, 0, len(r.entries)-1)
		entries = append(entries, r.entries[:i]...)
		r.entries = append(entries, r.entries[i+1:]...)
		return true
	}
	return false
}

// Index returns h's registration index.
func (r *Registry) Index(h *Handler) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.handler == h {
			return e.index, true
		}
	}
	return 0, false
}

// Handlers returns the registered handlers in matching order.
func (r *Registry) Handlers() []*Handler {
	snap := r.snapshot()
	out := make([]*Handler, len(snap))
	for i, e := range snap {
		out[i] = e.handler
	}
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries
}
