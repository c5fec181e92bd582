// Package watcher turns writes to a trigger file into debounced run signals.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/georefresh/internal/log"
)

// DefaultDebounce coalesces bursts of writes into one signal.
const DefaultDebounce = time.Second

// Config holds watcher configuration options.
type Config struct {
	// Path is the trigger file. It need not exist yet; its directory must.
	Path     string
	Debounce time.Duration
}

// Watcher signals when the trigger file is created or written.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a watcher. Call Start to begin receiving signals.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("trigger file path is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      filepath.Clean(cfg.Path),
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the trigger file's directory, so the file may be replaced
// atomically. The returned channel holds at most one pending signal.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatcher, "Watching trigger file", "path", w.path, "debounce", w.debounce)

	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// Reset discards a stale expiry under Go 1.23 timer semantics.
			timer.Reset(w.debounce)

		case <-timer.C:
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "Watcher error", "path", w.path, "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}
