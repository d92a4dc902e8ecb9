// Package watcher notifies about changes to individual files.
//
// fsnotify watches the parent directory of every file and events are
// filtered to the exact file names, so editors that save by writing a
// temporary file and renaming it over the original are still seen.
// Rapid successive writes are coalesced by a debounce interval.
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{
//	    DebounceInterval: 200 * time.Millisecond,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx, []string{"~/.config/nmdcbot/responses.yaml"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range w.Events() {
//	    fmt.Printf("File %s: %s\n", event.Path, event.Op)
//	}
package watcher

import (
	"context"
	"time"
)

// Op describes a file operation type.
type Op uint32

// File operation types.
const (
	OpCreate Op = 1 << iota // File created
	OpWrite                 // File modified
	OpRemove                // File deleted
	OpRename                // File renamed/moved
	OpChmod                 // File permissions changed
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Event represents a change to a watched file.
type Event struct {
	// Path is the cleaned absolute path of the watched file.
	Path string

	// Op is the last operation seen within the debounce window.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher provides file change notifications.
type Watcher interface {
	// Start begins watching the given files. Files that do not exist yet
	// are watched as long as their directory exists.
	//
	// Returns ErrInvalidPath when no file has an existing directory.
	Start(ctx context.Context, files []string) error

	// Stop stops delivering events. The watcher can not be restarted.
	Stop() error

	// Events returns the channel of debounced file events.
	// The channel is closed by Close.
	Events() <-chan Event

	// Errors returns the channel of non-fatal watcher errors.
	// The channel is closed by Close.
	Errors() <-chan error

	// Close closes the watcher and releases resources.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// DebounceInterval is the time to wait before emitting an event.
	// Multiple events for the same file within this interval are coalesced.
	// Default: 100ms.
	DebounceInterval time.Duration

	// CircuitBreakerThreshold is the number of consecutive fsnotify errors
	// after which the watcher reports ErrCircuitBreakerOpen and stops.
	// Default: 5.
	CircuitBreakerThreshold int
}
