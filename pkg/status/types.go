// Package status serves a small read-only HTTP API over a running bot:
// health, the hub roster, share statistics and Prometheus metrics.
//
// Example usage:
//
//	srv := status.New(status.Config{ListenAddr: "127.0.0.1:9411"}, b, m.Handler(), log)
//	go srv.Serve(ctx)
package status

import (
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

// Source provides the data the server exposes.
type Source interface {
	// Snapshot returns the current bot state.
	Snapshot() Snapshot

	// Users returns the current roster.
	Users() []roster.User
}

// Snapshot describes a bot at one point in time.
type Snapshot struct {
	State      string    `json:"state"`
	Connected  bool      `json:"connected"`
	Hub        string    `json:"hub"`
	HubName    string    `json:"hub_name,omitempty"`
	Nick       string    `json:"nick"`
	Users      int       `json:"users"`
	Reconnects int       `json:"reconnects"`
	Since      time.Time `json:"since,omitempty"`
}

// Config contains status server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	// Default: "127.0.0.1:9411".
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s.
	ShutdownTimeout time.Duration
}
