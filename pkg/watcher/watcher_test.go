package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
)

func newTestWatcher(t *testing.T) Watcher {
	t.Helper()

	w, err := New(Config{DebounceInterval: 50 * time.Millisecond}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Logf("Close() error = %v", err)
		}
	})
	return w
}

func waitEvent(t *testing.T, w Watcher, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		return ev, ok
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestNewDefaults(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	impl := w.(*watcher)
	if impl.config.DebounceInterval != 100*time.Millisecond {
		t.Errorf("DebounceInterval = %v, want 100ms", impl.config.DebounceInterval)
	}
	if impl.config.CircuitBreakerThreshold != 5 {
		t.Errorf("CircuitBreakerThreshold = %d, want 5", impl.config.CircuitBreakerThreshold)
	}

	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}
	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("second Close() error = %v", closeErr)
	}
}

func TestWriteToWatchedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "responses.yaml")
	if err := os.WriteFile(file, []byte("responses: []\n"), 0600); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t)
	if err := w.Start(context.Background(), []string{file}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Several quick writes collapse into one event.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(file, []byte("responses: []\n# edit\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	ev, ok := waitEvent(t, w, 2*time.Second)
	if !ok {
		t.Fatal("no event for watched file")
	}
	if ev.Path != file {
		t.Errorf("Path = %q, want %q", ev.Path, file)
	}

	if extra, ok := waitEvent(t, w, 200*time.Millisecond); ok {
		t.Errorf("unexpected extra event: %+v", extra)
	}
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "responses.yaml")

	w := newTestWatcher(t)
	if err := w.Start(context.Background(), []string{file}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if ev, ok := waitEvent(t, w, 300*time.Millisecond); ok {
		t.Errorf("event for unwatched file: %+v", ev)
	}

	// A file that did not exist at Start is picked up once created.
	if err := os.WriteFile(file, []byte("responses: []\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Error("no event after creating watched file")
	}
}

func TestRenameOverWatchedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "responses.yaml")
	if err := os.WriteFile(file, []byte("a"), 0600); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t)
	if err := w.Start(context.Background(), []string{file}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tmp := filepath.Join(dir, ".responses.yaml.swp")
	if err := os.WriteFile(tmp, []byte("b"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, file); err != nil {
		t.Fatal(err)
	}

	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Error("no event after atomic replace")
	}
}

func TestStartErrors(t *testing.T) {
	w := newTestWatcher(t)

	err := w.Start(context.Background(), []string{"/definitely/not/here/file.yaml"})
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Start() error = %v, want ErrInvalidPath", err)
	}

	file := filepath.Join(t.TempDir(), "f.yaml")
	if err := w.Start(context.Background(), []string{file}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(context.Background(), []string{file}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopAndClose(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() error = %v, want ErrNotStarted", err)
	}

	file := filepath.Join(t.TempDir(), "f.yaml")
	if err := w.Start(context.Background(), []string{file}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Start(context.Background(), []string{file}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start() after Stop error = %v, want ErrAlreadyStarted", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events() not closed after Close")
	}
	if err := w.Stop(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Stop() after Close error = %v, want ErrWatcherClosed", err)
	}
	if err := w.Start(context.Background(), []string{file}); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Start() after Close error = %v, want ErrWatcherClosed", err)
	}
}

func TestCircuitBreaker(t *testing.T) {
	w, err := New(Config{CircuitBreakerThreshold: 2}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	impl := w.(*watcher)
	if impl.handleError(errors.New("first")) {
		t.Error("breaker opened after one error")
	}
	if !impl.handleError(errors.New("second")) {
		t.Error("breaker did not open at threshold")
	}

	first := <-w.Errors()
	if first == nil || first.Error() != "first" {
		t.Errorf("first error = %v", first)
	}
	if second := <-w.Errors(); !errors.Is(second, ErrCircuitBreakerOpen) {
		t.Errorf("second error = %v, want ErrCircuitBreakerOpen", second)
	}
}

func TestHandleEventResetsFailures(t *testing.T) {
	w, err := New(Config{CircuitBreakerThreshold: 2, DebounceInterval: time.Millisecond}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	impl := w.(*watcher)
	impl.files["/tmp/x.yaml"] = struct{}{}

	impl.handleError(errors.New("one"))
	impl.handleEvent(fsnotify.Event{Name: "/tmp/x.yaml", Op: fsnotify.Write})
	if impl.handleError(errors.New("two")) {
		t.Error("breaker opened although an event arrived in between")
	}
}

func TestOpString(t *testing.T) {
	tests := map[Op]string{
		OpCreate: "CREATE",
		OpWrite:  "WRITE",
		OpRemove: "REMOVE",
		OpRename: "RENAME",
		OpChmod:  "CHMOD",
		Op(999):  "UNKNOWN",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("Op(%d).String() = %q, want %q", op, got, want)
		}
	}
}
