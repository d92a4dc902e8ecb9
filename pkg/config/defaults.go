package config

import (
	"os"
	"path/filepath"
)

// appDir is the per-user directory name under ~/.config.
const appDir = "nmdcbot"

// defaultDBPath returns the default database file path.
//
// Returns: ~/.config/nmdcbot/responses.db.
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./responses.db"
	}

	return filepath.Join(homeDir, ".config", appDir, "responses.db")
}

// defaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/nmdcbot/config.yaml.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", appDir, "config.yaml")
}

// DefaultPath returns the configuration file used when none is given.
func DefaultPath() string {
	return defaultConfigPath()
}
