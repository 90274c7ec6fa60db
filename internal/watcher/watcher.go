package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDuration = 100 * time.Millisecond

// Watcher reloads the manifest whenever its file changes.
// The parent directory is watched so editors that replace the file are still seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	reloadFn func() error
	log      *observability.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a new file watcher
func NewWatcher(path string, reloadFn func() error, log *observability.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if log == nil {
		log = observability.Nop()
	}

	return &Watcher{
		path:     abs,
		watcher:  watcher,
		reloadFn: reloadFn,
		log:      log.Named("watcher"),
	}, nil
}

// Start begins watching for file changes
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	go w.watch()

	w.log.L().Info("Watching manifest for changes", zap.String("path", w.path))
	return nil
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.log.L().Debug("Manifest changed", zap.String("op", event.Op.String()))
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.L().Warn("Watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether the event brought new manifest content.
// Removals and renames are skipped; the create that follows a replace triggers the reload.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

// scheduleReload coalesces bursts of events into one reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}

	w.debounce = time.AfterFunc(debounceDuration, func() {
		if err := w.reloadFn(); err != nil {
			w.log.L().Error("Failed to reload manifest", zap.Error(err))
			return
		}
		w.log.L().Info("Manifest reloaded")
	})
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
