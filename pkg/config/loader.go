package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// Resolve merges the same sources as Load without validating, for
	// commands that only need part of the configuration.
	Resolve() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)

	// Path returns the file Load reads, or "" when none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for config file in:
// 1. ./config.yaml (current directory)
// 2. ~/.config/nmdcbot/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg, err := l.Resolve()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Resolve implements Loader.Resolve.
func (l *loader) Resolve() (*Config, error) {
	cfg := Default()

	configPath := l.Path()
	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicit path must load; a discovered one may be skipped.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	return l.applyEnvVars(cfg), nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return l.findConfigFile()
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		defaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	// Hub
	mergeString(&result.Hub.Address, override.Hub.Address)
	mergeString(&result.Hub.Encoding, override.Hub.Encoding)
	if override.Hub.DialTimeout > 0 {
		result.Hub.DialTimeout = override.Hub.DialTimeout
	}
	if override.Hub.HandshakeTimeout > 0 {
		result.Hub.HandshakeTimeout = override.Hub.HandshakeTimeout
	}
	if override.Hub.WriteTimeout > 0 {
		result.Hub.WriteTimeout = override.Hub.WriteTimeout
	}
	if override.Hub.TrailerWait > 0 {
		result.Hub.TrailerWait = override.Hub.TrailerWait
	}

	// Identity
	mergeString(&result.Identity.Nick, override.Identity.Nick)
	mergeString(&result.Identity.Password, override.Identity.Password)
	mergeString(&result.Identity.Description, override.Identity.Description)
	mergeString(&result.Identity.Connection, override.Identity.Connection)
	mergeString(&result.Identity.Email, override.Identity.Email)
	if override.Identity.ShareSize != 0 {
		result.Identity.ShareSize = override.Identity.ShareSize
	}
	if override.Identity.Slots != 0 {
		result.Identity.Slots = override.Identity.Slots
	}

	// Active; Enabled is a bool, so we always take the override value
	result.Active.Enabled = override.Active.Enabled
	mergeString(&result.Active.ListenAddr, override.Active.ListenAddr)
	mergeString(&result.Active.PublicIP, override.Active.PublicIP)

	// Bot
	mergeString(&result.Bot.Greeting, override.Bot.Greeting)
	mergeString(&result.Bot.Announce, override.Bot.Announce)
	mergeString(&result.Bot.ResponsesFile, override.Bot.ResponsesFile)
	if override.Bot.AnnounceInterval != 0 {
		result.Bot.AnnounceInterval = override.Bot.AnnounceInterval
	}
	if override.Bot.ReconnectDelay != 0 {
		result.Bot.ReconnectDelay = override.Bot.ReconnectDelay
	}
	if override.Bot.MaxReconnectDelay != 0 {
		result.Bot.MaxReconnectDelay = override.Bot.MaxReconnectDelay
	}
	if override.Bot.MaxReconnects != 0 {
		result.Bot.MaxReconnects = override.Bot.MaxReconnects
	}

	// Storage
	mergeString(&result.Storage.DBPath, override.Storage.DBPath)

	// Status
	result.Status.Enabled = override.Status.Enabled
	mergeString(&result.Status.ListenAddr, override.Status.ListenAddr)

	// Display
	mergeString(&result.Display.Format, override.Display.Format)
	result.Display.Compact = override.Display.Compact

	// Logging
	mergeString(&result.Logging.Level, override.Logging.Level)
	mergeString(&result.Logging.Output, override.Logging.Output)
	mergeString(&result.Logging.Format, override.Logging.Format)

	return &result
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - NMDCBOT_HUB: Hub address
//   - NMDCBOT_NICK: Nick
//   - NMDCBOT_PASSWORD: Hub password
//   - NMDCBOT_DB: Path to database file
//   - NMDCBOT_LOG_LEVEL: Log level
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if hub := os.Getenv("NMDCBOT_HUB"); hub != "" {
		result.Hub.Address = strings.TrimSpace(hub)
	}

	if nick := os.Getenv("NMDCBOT_NICK"); nick != "" {
		result.Identity.Nick = strings.TrimSpace(nick)
	}

	if pass := os.Getenv("NMDCBOT_PASSWORD"); pass != "" {
		result.Identity.Password = pass
	}

	if dbPath := os.Getenv("NMDCBOT_DB"); dbPath != "" {
		result.Storage.DBPath = dbPath
	}

	if logLevel := os.Getenv("NMDCBOT_LOG_LEVEL"); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
