package ticker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
)

// Ticker calls a Func every interval while running. A stopped Ticker can
// be started again.
type Ticker struct {
	interval time.Duration
	fn       Func
	logger   logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped Ticker.
func New(interval time.Duration, fn Func, log logger.Logger) (*Ticker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidInterval)
	}
	if log == nil {
		log = logger.Noop()
	}

	return &Ticker{
		interval: interval,
		fn:       fn,
		logger:   log,
	}, nil
}

// Start begins calling the callback. The first call happens one interval
// after Start.
func (t *Ticker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrTaskRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	go t.loop(ctx, t.done)

	t.logger.Debug("periodic task started", "interval", t.interval)
	return nil
}

// Stop halts the ticker and waits for an in-flight callback to return.
func (t *Ticker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrTaskNotRunning
	}
	t.running = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	t.logger.Debug("periodic task stopped")
	return nil
}

// Running reports whether the ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.fn(ctx)
		}
	}
}
