package pac

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the watcher waits for an install to
// settle before restarting pac.
const DefaultWatchDebounce = 500 * time.Millisecond

// Resetter is implemented by Channel.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ExecutableWatcher restarts a channel when the pac binary is replaced on
// disk. Installers rewrite the file in several steps, so changes are
// debounced and trigger a single Reset.
type ExecutableWatcher struct {
	path     string
	target   Resetter
	debounce time.Duration
	log      *slog.Logger

	// OnReset, when set, is called after every Reset attempt.
	OnReset func(err error)
}

// NewExecutableWatcher watches path and resets target on change.
func NewExecutableWatcher(path string, target Resetter, log *slog.Logger) *ExecutableWatcher {
	return &ExecutableWatcher{
		path:     path,
		target:   target,
		debounce: DefaultWatchDebounce,
		log:      log,
	}
}

// SetDebounce overrides DefaultWatchDebounce.
func (w *ExecutableWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until ctx ends. The parent directory is watched rather than
// the file so that replace-by-rename installs are seen.
func (w *ExecutableWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Debug("watching pac executable", "path", w.path)

	name := filepath.Base(w.path)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("pac executable changed", "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("executable watcher error", "error", err)

		case <-timer.C:
			w.log.Info("pac executable replaced, restarting channel", "path", w.path)
			err := w.target.Reset(ctx)
			if err != nil {
				w.log.Error("failed to restart pac after update", "error", err)
			}
			if w.OnReset != nil {
				w.OnReset(err)
			}
		}
	}
}
