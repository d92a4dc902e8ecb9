// Package config provides configuration management for nmdcbot.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Hub: %s as %s\n", cfg.Hub.Address, cfg.Identity.Nick)
package config

import (
	"net"
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Hub.Address must be host:port
// - Identity.Nick must be a valid nick
// - Identity.Slots must be > 0
// - Hub timeouts must be > 0
// - Bot.ReconnectDelay must be > 0
// - Bot.MaxReconnects must be >= 0.
type Config struct {
	// Hub connection settings
	Hub HubConfig `yaml:"hub"`

	// What the bot announces about itself
	Identity IdentityConfig `yaml:"identity"`

	// Active mode (UDP search replies)
	Active ActiveConfig `yaml:"active"`

	// Bot behaviour
	Bot BotConfig `yaml:"bot"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Status HTTP server
	Status StatusConfig `yaml:"status"`

	// Display settings
	Display DisplayConfig `yaml:"display"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// HubConfig contains hub connection settings.
type HubConfig struct {
	// Hub host:port
	Address string `yaml:"address"`

	// Hub text encoding, e.g. windows-1252
	Encoding string `yaml:"encoding"`

	DialTimeout      time.Duration `yaml:"dial_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`

	// How long to wait for the frame after the nick list
	TrailerWait time.Duration `yaml:"trailer_wait"`
}

// IdentityConfig contains the client identity.
type IdentityConfig struct {
	Nick        string `yaml:"nick"`
	Password    string `yaml:"password,omitempty"`
	Description string `yaml:"description"`
	Connection  string `yaml:"connection"`
	Email       string `yaml:"email"`
	ShareSize   int64  `yaml:"share_size"`
	Slots       int    `yaml:"slots"`
}

// ActiveConfig contains active mode settings.
type ActiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Local UDP listen address
	ListenAddr string `yaml:"listen_addr"`

	// Address advertised in searches; empty uses the local hub address
	PublicIP string `yaml:"public_ip"`
}

// BotConfig contains bot settings.
type BotConfig struct {
	// Greeting for joining users; {nick} is replaced
	Greeting string `yaml:"greeting"`

	// Periodic main chat announcement
	Announce         string        `yaml:"announce"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`

	// YAML file of responses imported at start and on change
	ResponsesFile string `yaml:"responses_file"`

	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`

	// 0 means unlimited
	MaxReconnects int `yaml:"max_reconnects"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB database file
	DBPath string `yaml:"db_path"`
}

// StatusConfig contains status server settings.
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Default output format (table, json, simple)
	Format string `yaml:"format"`

	// Compact output
	Compact bool `yaml:"compact"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Hub.Address == "" {
		return ErrNoHubAddress
	}
	if _, _, err := net.SplitHostPort(c.Hub.Address); err != nil {
		return ErrInvalidHubAddress
	}
	if c.Hub.DialTimeout <= 0 || c.Hub.HandshakeTimeout <= 0 ||
		c.Hub.WriteTimeout <= 0 || c.Hub.TrailerWait <= 0 {
		return ErrInvalidTimeout
	}

	if err := nmdc.ValidateNick(c.Identity.Nick); err != nil {
		return ErrInvalidNick
	}
	if c.Identity.Slots <= 0 {
		return ErrInvalidSlots
	}
	if c.Identity.ShareSize < 0 {
		return ErrInvalidShareSize
	}

	if c.Active.Enabled && c.Active.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if c.Status.Enabled && c.Status.ListenAddr == "" {
		return ErrInvalidListenAddr
	}

	if c.Bot.ReconnectDelay <= 0 {
		return ErrInvalidReconnectDelay
	}
	if c.Bot.MaxReconnects < 0 {
		return ErrInvalidMaxReconnects
	}
	if c.Bot.AnnounceInterval < 0 {
		return ErrInvalidAnnounceInterval
	}

	validFormats := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Display.Format] {
		return ErrInvalidDisplayFormat
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// SessionConfig converts the hub, identity and active sections into an
// nmdc.Config.
func (c *Config) SessionConfig() nmdc.Config {
	sc := nmdc.Config{
		Address: c.Hub.Address,
		Identity: nmdc.Identity{
			Nick:        c.Identity.Nick,
			Password:    c.Identity.Password,
			Description: c.Identity.Description,
			Connection:  c.Identity.Connection,
			Email:       c.Identity.Email,
			ShareSize:   c.Identity.ShareSize,
			Slots:       c.Identity.Slots,
		},
		Encoding:         c.Hub.Encoding,
		DialTimeout:      c.Hub.DialTimeout,
		HandshakeTimeout: c.Hub.HandshakeTimeout,
		WriteTimeout:     c.Hub.WriteTimeout,
		TrailerWait:      c.Hub.TrailerWait,
	}
	if c.Active.Enabled {
		sc.Active = &nmdc.ActiveConfig{
			ListenAddr: c.Active.ListenAddr,
			PublicIP:   c.Active.PublicIP,
		}
	}
	return sc
}

// Default returns a configuration with sensible default values.
//
// The default has no hub address or nick; those must come from the
// file or the environment.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			Encoding:         "windows-1252",
			DialTimeout:      nmdc.DefaultDialTimeout,
			HandshakeTimeout: nmdc.DefaultHandshakeTimeout,
			WriteTimeout:     nmdc.DefaultWriteTimeout,
			TrailerWait:      nmdc.DefaultTrailerWait,
		},
		Identity: IdentityConfig{
			Connection: "LAN(T3)",
			Slots:      3,
		},
		Active: ActiveConfig{
			ListenAddr: ":412",
		},
		Bot: BotConfig{
			ReconnectDelay:    5 * time.Second,
			MaxReconnectDelay: 5 * time.Minute,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Status: StatusConfig{
			ListenAddr: "127.0.0.1:9411",
		},
		Display: DisplayConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
