package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watch turns writes to the database file (and its journal siblings) into
// early fingerprint checks. Polling stays the fallback.
func (s *Scheduler) watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	base := filepath.Base(path)
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(event.Name), base) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.After(watchDebounce)
				}
			case <-debounce:
				debounce = nil
				s.Trigger()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Database watch error", zap.Error(err))
			}
		}
	}()

	s.logger.Debug("Watching database for changes", zap.String("path", path))
	return nil
}
