package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jdelaire/openwa/core/model"
)

var (
	ErrUnauthorized = errors.New("unauthorized sender")
	ErrStale        = errors.New("stale message")
	ErrDuplicate    = errors.New("duplicate message")
)

// SeenStore records message ids that have already been accepted.
type SeenStore interface {
	// MarkSeen records id and reports whether it was new.
	MarkSeen(ctx context.Context, id string) (bool, error)
}

// Policy decides whether an inbound message should be dispatched: sender
// allowlist, freshness window, and message id deduplication. The platform
// redelivers webhooks it considers unacknowledged, so dedup matters even
// with a single replica.
type Policy struct {
	mu      sync.RWMutex
	allowed map[string]bool

	window time.Duration
	seen   SeenStore
	now    func() time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithAllowFrom restricts dispatch to the given sender wa_ids. An empty
// list allows every sender.
func WithAllowFrom(ids []string) Option {
	return func(p *Policy) { p.allowed = allowSet(ids) }
}

func allowSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// WithFreshnessWindow drops messages older than window. Zero disables
// the check.
func WithFreshnessWindow(window time.Duration) Option {
	return func(p *Policy) { p.window = window }
}

// WithSeenStore replaces the default in-memory dedup store.
func WithSeenStore(s SeenStore) Option {
	return func(p *Policy) { p.seen = s }
}

// New creates a Policy. By default every sender is allowed, there is no
// freshness window, and dedup uses a MemoryStore.
func New(opts ...Option) *Policy {
	p := &Policy{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.seen == nil {
		p.seen = NewMemoryStore()
	}
	return p
}

// Authorize checks whether msg should be dispatched. The dedup record is
// only written for messages that pass the other checks.
func (p *Policy) Authorize(ctx context.Context, msg *model.Message) error {
	p.mu.RLock()
	allowed := p.allowed
	p.mu.RUnlock()
	if allowed != nil && !allowed[msg.From] {
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg.From)
	}

	if p.window > 0 && !msg.Timestamp.IsZero() {
		if age := p.now().Sub(msg.Timestamp); age > p.window {
			return fmt.Errorf("%w: %v old", ErrStale, age.Truncate(time.Second))
		}
	}

	fresh, err := p.seen.MarkSeen(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("dedup store: %w", err)
	}
	if !fresh {
		return fmt.Errorf("%w: %s", ErrDuplicate, msg.ID)
	}
	return nil
}

// SetAllowFrom replaces the sender allowlist. An empty list allows every
// sender.
func (p *Policy) SetAllowFrom(ids []string) {
	set := allowSet(ids)
	p.mu.Lock()
	p.allowed = set
	p.mu.Unlock()
}
