package bot

import "errors"

var (
	// ErrInvalidConfig indicates the bot configuration is unusable.
	ErrInvalidConfig = errors.New("invalid bot configuration")

	// ErrTooManyReconnects indicates MaxReconnects was exhausted.
	ErrTooManyReconnects = errors.New("too many reconnect attempts")

	// ErrAlreadyRunning indicates Run was called while running.
	ErrAlreadyRunning = errors.New("bot already running")
)
