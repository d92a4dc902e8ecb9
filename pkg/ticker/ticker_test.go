package ticker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
)

func TestNewValidation(t *testing.T) {
	_, err := New(0, func(context.Context) {}, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(-time.Second, func(context.Context) {}, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(time.Second, nil, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestTickerCallsRepeatedly(t *testing.T) {
	var calls atomic.Int32
	tk, err := New(10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	}, logger.Noop())
	require.NoError(t, err)

	require.NoError(t, tk.Start())
	assert.True(t, tk.Running())

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tk.Stop())
	assert.False(t, tk.Running())

	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestTickerStartStopErrors(t *testing.T) {
	tk, err := New(time.Hour, func(context.Context) {}, logger.Noop())
	require.NoError(t, err)

	assert.ErrorIs(t, tk.Stop(), ErrTaskNotRunning)

	require.NoError(t, tk.Start())
	assert.ErrorIs(t, tk.Start(), ErrTaskRunning)

	require.NoError(t, tk.Stop())
	assert.ErrorIs(t, tk.Stop(), ErrTaskNotRunning)
}

func TestTickerRestart(t *testing.T) {
	var calls atomic.Int32
	tk, err := New(10*time.Millisecond, func(context.Context) { calls.Add(1) }, logger.Noop())
	require.NoError(t, err)

	require.NoError(t, tk.Start())
	require.NoError(t, tk.Stop())

	before := calls.Load()
	require.NoError(t, tk.Start())
	assert.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, tk.Stop())
}

func TestTickerStopCancelsCallback(t *testing.T) {
	entered := make(chan struct{}, 1)
	tk, err := New(5*time.Millisecond, func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
	}, logger.Noop())
	require.NoError(t, err)

	require.NoError(t, tk.Start())
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- tk.Stop() }()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a running callback")
	}
}
