package serverlist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last event before
// reloading. Editors and [Save] both produce bursts of events.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the list at path whenever it changes on disk and passes the
// new list to onChange.
//
// The parent directory is watched rather than the file itself, so atomic
// replacements (rename over the old file) keep being observed. Files that
// fail to parse are logged and skipped; the previous list stays in effect.
//
// Watch returns once the watcher is registered. The returned channel is
// closed when ctx is cancelled and the watcher has shut down.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func([]string)) (<-chan struct{}, error) {
	return watch(ctx, path, DefaultDebounce, logger, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func([]string)) (<-chan struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server list path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create server list directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = w.Close() }()

		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				timer.Reset(debounce)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("server list watcher error", "path", abs, "error", err)

			case <-timer.C:
				addrs, err := Load(abs)
				if err != nil {
					logger.Warn("server list reload failed", "path", abs, "error", err)
					continue
				}
				logger.Info("server list reloaded", "path", abs, "servers", len(addrs))
				onChange(addrs)
			}
		}
	}()

	return done, nil
}
