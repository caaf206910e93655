package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 200 * time.Millisecond

// Watch hot-reloads the rules file on change until ctx is cancelled.
// A file that fails to load or validate keeps the previous rule set.
// The parent directory is watched rather than the file itself, so
// rename-over saves (editors, SaveFile) keep being observed.
func (e *Engine) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	e.logger.Info().Str("path", path).Msg("watching rules file")

	go e.watchLoop(ctx, watcher, path)
	return nil
}

func (e *Engine) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				e.reload(path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Error().Err(err).Msg("rules watcher error")
		}
	}
}

func (e *Engine) reload(path string) {
	loaded, err := LoadFile(path)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).
			Msg("rules reload failed, keeping previous set")
		return
	}
	if err := e.Replace(loaded); err != nil {
		e.logger.Error().Err(err).Str("path", path).
			Msg("rules reload rejected, keeping previous set")
		return
	}
	e.logger.Info().Int("count", len(loaded)).Msg("rules reloaded")
}
