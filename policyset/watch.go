package policyset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads a Set when its file is written or replaced.
type Watcher struct {
	watcher  *fsnotify.Watcher
	set      *Set
	path     string
	logger   *slog.Logger
	debounce time.Duration
	reloaded chan error
}

// NewWatcher watches the directory holding path and reacts to events on path only,
// so a file replaced by rename keeps being followed. The file must already exist.
func NewWatcher(set *Set, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("policyset: watch %q: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policyset: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("policyset: watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  w,
		set:      set,
		path:     path,
		logger:   logger,
		debounce: reloadDebounce,
		reloaded: make(chan error, 1),
	}, nil
}

// Reloaded delivers the result of each reload attempt. Results are dropped when the
// previous one has not been read.
func (w *Watcher) Reloaded() <-chan error {
	return w.reloaded
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			// A remove or rename without a following create leaves the old policies in place.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("formguard: policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	err := w.set.Reload(w.path)
	if err != nil {
		w.logger.Error("formguard: policy reload failed", "path", w.path, "error", err)
	} else {
		w.logger.Info("formguard: policies reloaded", "path", w.path, "count", len(w.set.Names()))
	}
	select {
	case w.reloaded <- err:
	default:
	}
}
