package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce batches rapid filesystem events into one re-index.
const DefaultWatchDebounce = 2 * time.Second

// Watch re-runs onChange whenever the handbook directory changes, debounced
// so editor save bursts trigger a single re-index. It blocks until the
// context is cancelled.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger, onChange func(context.Context) error) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	addTree := func() error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(path)
			}
			return nil
		})
	}
	if err := addTree(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("handbook change detected", "path", ev.Name, "op", ev.Op.String())
			if ev.Op&fsnotify.Create != 0 {
				// New directories need their own watch; ignore failures on
				// files.
				_ = watcher.Add(ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			logger.Info("re-indexing after handbook change", "root", root)
			if err := onChange(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("re-index failed", "error", err)
			}
		}
	}
}
