package configwatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls files and calls back when one of them changes on disk.
type Watcher struct {
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	files []*watched
}

type watched struct {
	path string
	last stamp
	cb   func(path string)
}

// stamp identifies one on-disk version of a file. Size is compared too
// because some filesystems only keep mtime to the second.
type stamp struct {
	modTime time.Time
	size    int64
}

func (s stamp) missing() bool { return s.modTime.IsZero() }

// New creates a Watcher that polls every interval.
func New(interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{interval: interval, logger: logger}
}

// Watch registers cb for path. The file may not exist yet; its creation
// counts as a change.
func (w *Watcher) Watch(path string, cb func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append(w.files, &watched{path: path, last: stampOf(path), cb: cb})
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	var changed []*watched
	for _, f := range w.files {
		cur := stampOf(f.path)
		// A missing file is usually an editor mid-save.
		if cur.missing() || cur == f.last {
			continue
		}
		f.last = cur
		changed = append(changed, f)
	}
	w.mu.Unlock()

	for _, f := range changed {
		w.logger.Info("config file changed", "path", f.path)
		f.cb(f.path)
	}
}

func stampOf(path string) stamp {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}
}
