package responses

import "errors"

// Common errors returned by the responses store.
var (
	// ErrResponseNotFound is returned when no response has the ID or trigger.
	ErrResponseNotFound = errors.New("response not found")

	// ErrEmptyTrigger is returned when a trigger is blank.
	ErrEmptyTrigger = errors.New("response trigger cannot be empty")

	// ErrEmptyReply is returned when a reply is blank.
	ErrEmptyReply = errors.New("response reply cannot be empty")

	// ErrTriggerConflict is returned when a trigger is already used.
	ErrTriggerConflict = errors.New("response trigger already exists")

	// ErrInvalidMode is returned for an unknown match mode or scope.
	ErrInvalidMode = errors.New("invalid response mode")

	// ErrInvalidResponse is returned for a nil response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidImport is returned when an import file cannot be parsed.
	ErrInvalidImport = errors.New("invalid responses file")
)
