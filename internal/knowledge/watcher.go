package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the FAQ file into base whenever it changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file on save are picked up. A file that fails to parse keeps the
// previous entries.
func Watch(ctx context.Context, path string, base *Base, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve faq path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				entries, err := Load(abs)
				if err != nil {
					logger.Warn("FAQ reload failed, keeping previous entries",
						zap.String("path", abs),
						zap.Error(err))
					continue
				}
				base.Replace(entries)
				logger.Info("FAQ reloaded",
					zap.String("path", abs),
					zap.Int("entries", len(entries)))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("fsnotify error", zap.Error(err))
			}
		}
	}()

	return nil
}
