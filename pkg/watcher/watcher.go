package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
)

// watcher implements the Watcher interface using fsnotify.
type watcher struct {
	fsw    *fsnotify.Watcher
	logger logger.Logger
	config Config

	events chan Event
	errors chan error

	mu       sync.RWMutex
	running  bool
	stopped  bool
	closed   bool
	stopChan chan struct{}
	files    map[string]struct{}

	// Debouncing state.
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// Circuit breaker state.
	failureCount int
}

// New creates a new file watcher.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = 5
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &watcher{
		fsw:            fsw,
		logger:         log,
		config:         cfg,
		events:         make(chan Event, 16),
		errors:         make(chan error, 4),
		stopChan:       make(chan struct{}),
		files:          make(map[string]struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}

	log.Debug("file watcher created", "debounce_interval", cfg.DebounceInterval)

	return w, nil
}

// Start implements Watcher.Start.
func (w *watcher) Start(ctx context.Context, files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.running || w.stopped {
		return ErrAlreadyStarted
	}

	dirs := make(map[string]struct{})
	for _, file := range files {
		abs, err := filepath.Abs(ExpandHome(file))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPath, file, err)
		}

		dir := filepath.Dir(abs)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			w.logger.Warn("watch directory does not exist, skipping", "path", abs)
			continue
		}

		w.files[abs] = struct{}{}
		dirs[dir] = struct{}{}
	}

	if len(w.files) == 0 {
		return ErrInvalidPath
	}

	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.running = true

	w.logger.Info("watcher started", "files", len(w.files), "dirs", len(dirs))

	go w.processEvents(ctx)
	return nil
}

// Stop implements Watcher.Stop.
func (w *watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.running {
		return ErrNotStarted
	}

	close(w.stopChan)
	w.running = false
	w.stopped = true

	w.logger.Info("watcher stopped")
	return nil
}

// Events implements Watcher.Events.
func (w *watcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *watcher) Errors() <-chan error {
	return w.errors
}

// Close implements Watcher.Close.
func (w *watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.running {
		close(w.stopChan)
		w.running = false
	}
	w.mu.Unlock()

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.debounceTimers = nil
	w.debounceMu.Unlock()

	err := w.fsw.Close()

	// Timers that already fired hold the read lock while sending, so the
	// channels are closed only once none of them can still be sending.
	w.mu.Lock()
	close(w.events)
	close(w.errors)
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("failed to close fsnotify watcher", "error", err)
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Debug("watcher closed")
	return nil
}

// processEvents handles events from fsnotify.
func (w *watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("event processing stopped", "reason", "context cancelled")
			return

		case <-w.stopChan:
			w.logger.Debug("event processing stopped", "reason", "stop signal")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.handleError(err) {
				return
			}
		}
	}
}

// handleEvent filters an fsnotify event to the watched files and debounces it.
func (w *watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.RLock()
	_, watched := w.files[path]
	w.mu.RUnlock()
	if !watched {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = OpCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		op = OpWrite
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		op = OpRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		op = OpRename
	case event.Op&fsnotify.Chmod == fsnotify.Chmod:
		op = OpChmod
	default:
		return
	}

	w.mu.Lock()
	w.failureCount = 0
	w.mu.Unlock()

	w.debounceEvent(Event{
		Path:      path,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// debounceEvent emits event once no newer event for the same path arrives
// within the debounce interval.
func (w *watcher) debounceEvent(event Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimers == nil {
		return
	}
	if timer, exists := w.debounceTimers[event.Path]; exists {
		timer.Stop()
	}

	w.debounceTimers[event.Path] = time.AfterFunc(w.config.DebounceInterval, func() {
		w.debounceMu.Lock()
		if w.debounceTimers != nil {
			delete(w.debounceTimers, event.Path)
		}
		w.debounceMu.Unlock()

		w.mu.RLock()
		defer w.mu.RUnlock()
		if w.closed {
			return
		}
		select {
		case w.events <- event:
		default:
			w.logger.Warn("event channel full, dropping event", "path", event.Path)
		}
	})
}

// handleError counts consecutive fsnotify errors. It reports whether the
// circuit breaker opened.
func (w *watcher) handleError(err error) bool {
	w.mu.Lock()
	w.failureCount++
	count := w.failureCount
	w.mu.Unlock()

	w.logger.Error("fsnotify error", "error", err, "failure_count", count)

	out := err
	open := count >= w.config.CircuitBreakerThreshold
	if open {
		w.logger.Error("circuit breaker opened", "threshold", w.config.CircuitBreakerThreshold)
		out = ErrCircuitBreakerOpen
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.closed {
		select {
		case w.errors <- out:
		default:
			w.logger.Warn("error channel full, dropping error")
		}
	}
	return open
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
