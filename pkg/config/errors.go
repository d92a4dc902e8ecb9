package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoHubAddress is returned when no hub address is configured.
	ErrNoHubAddress = errors.New("no hub address specified")

	// ErrInvalidHubAddress is returned when the hub address is not host:port.
	ErrInvalidHubAddress = errors.New("invalid hub address: must be host:port")

	// ErrInvalidTimeout is returned when a hub timeout is <= 0.
	ErrInvalidTimeout = errors.New("invalid hub timeout: must be > 0")

	// ErrInvalidNick is returned when the nick is empty or has reserved characters.
	ErrInvalidNick = errors.New("invalid nick: must be non-empty without spaces, '$' or '|'")

	// ErrInvalidSlots is returned when slots is <= 0.
	ErrInvalidSlots = errors.New("invalid slots: must be > 0")

	// ErrInvalidShareSize is returned when share size is negative.
	ErrInvalidShareSize = errors.New("invalid share size: must be >= 0")

	// ErrInvalidListenAddr is returned when an enabled listener has no address.
	ErrInvalidListenAddr = errors.New("invalid listen address: required when enabled")

	// ErrInvalidReconnectDelay is returned when reconnect delay is <= 0.
	ErrInvalidReconnectDelay = errors.New("invalid reconnect delay: must be > 0")

	// ErrInvalidMaxReconnects is returned when max reconnects is negative.
	ErrInvalidMaxReconnects = errors.New("invalid max reconnects: must be >= 0")

	// ErrInvalidAnnounceInterval is returned when announce interval is negative.
	ErrInvalidAnnounceInterval = errors.New("invalid announce interval: must be >= 0")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
