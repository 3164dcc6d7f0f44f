package core

import (
	"log/slog"
	"slices"
	"sync"
)

// AllowlistLoader reads the sender allowlist from a config file.
type AllowlistLoader func(path string) ([]string, error)

// AllowlistSetter receives a reloaded allowlist. *policy.Policy satisfies it.
type AllowlistSetter interface {
	SetAllowFrom(ids []string)
}

// Reloader applies config file edits to a running policy without a
// restart. Only the sender allowlist is reloadable; everything else needs
// the process to be restarted.
type Reloader struct {
	target AllowlistSetter
	load   AllowlistLoader
	logger *slog.Logger

	mu      sync.Mutex
	current []string
}

// NewReloader creates a Reloader. initial is the allowlist already applied
// to target.
func NewReloader(target AllowlistSetter, load AllowlistLoader, initial []string, logger *slog.Logger) *Reloader {
	return &Reloader{
		target:  target,
		load:    load,
		logger:  logger,
		current: normalize(initial),
	}
}

// ReloadAllowlist re-reads path and applies the allowlist if it changed.
// A file that fails to load leaves the current allowlist in place.
func (r *Reloader) ReloadAllowlist(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.load(path)
	if err != nil {
		r.logger.Error("reload allowlist failed", "path", path, "error", err)
		return
	}

	next := normalize(ids)
	if slices.Equal(next, r.current) {
		r.logger.Debug("allowlist unchanged", "path", path)
		return
	}

	r.target.SetAllowFrom(next)
	r.current = next
	if len(next) == 0 {
		r.logger.Info("allowlist reloaded", "senders", "all")
		return
	}
	r.logger.Info("allowlist reloaded", "senders", len(next))
}

func normalize(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Allowlist returns the allowlist currently in effect.
func (r *Reloader) Allowlist() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.current)
}
