package ticker

import "errors"

var (
	// ErrTaskRunning is returned when starting a ticker that is already running.
	ErrTaskRunning = errors.New("periodic task is already running")

	// ErrTaskNotRunning is returned when stopping a ticker that is not running.
	ErrTaskNotRunning = errors.New("periodic task is not running")

	// ErrInvalidInterval is returned for a non-positive interval or nil callback.
	ErrInvalidInterval = errors.New("invalid periodic task interval")
)
