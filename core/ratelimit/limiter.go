package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxFailures     = 5
	failureWindow   = 15 * time.Minute
	lockoutDuration = 15 * time.Minute
	maxTracked      = 10000
)

// ErrLockedOut is returned by Check for a key that failed too often.
var ErrLockedOut = errors.New("rate limited")

type record struct {
	failures []time.Time
	lockedAt time.Time
}

// Limiter tracks webhook verification failures per remote host and locks
// out hosts that exceed the failure threshold.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// New creates a rate limiter.
func New() *Limiter {
	return &Limiter{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Check returns an error if key is currently locked out.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.records[key]
	if r == nil || r.lockedAt.IsZero() {
		return nil
	}

	if elapsed := l.now().Sub(r.lockedAt); elapsed < lockoutDuration {
		remaining := lockoutDuration - elapsed
		return fmt.Errorf("%w: try again in %s", ErrLockedOut, remaining.Truncate(time.Second))
	}
	// Lockout expired.
	delete(l.records, key)
	return nil
}

// RecordFailure records a failed verification for key. Reaching the
// threshold within the window locks the key out.
func (l *Limiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.records) >= maxTracked {
		l.pruneLocked(now)
	}

	r := l.records[key]
	if r == nil {
		r = &record{}
		l.records[key] = r
	}

	cutoff := now.Add(-failureWindow)
	fresh := r.failures[:0]
	for _, t := range r.failures {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	r.failures = append(fresh, now)

	if len(r.failures) >= maxFailures {
		r.lockedAt = now
	}
}

// Reset clears all failure state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

// pruneLocked drops records with no recent failures and no active lockout.
// Must be called with mu held.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-failureWindow)
	for key, r := range l.records {
		if !r.lockedAt.IsZero() && now.Sub(r.lockedAt) < lockoutDuration {
			continue
		}
		if n := len(r.failures); n > 0 && r.failures[n-1].After(cutoff) {
			continue
		}
		delete(l.records, key)
	}
}
