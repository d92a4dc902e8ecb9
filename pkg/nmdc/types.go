// Package nmdc implements the client side of the NMDC ("Direct Connect") hub
// protocol: the lock/key handshake, pipe-delimited framing, the dispatch of
// hub traffic into typed events, and the search request/response codec with
// its hub-relayed and UDP delivery paths.
//
// A Session owns one hub connection. Connect performs the handshake in
// lockstep on the caller's goroutine; afterwards a single reader goroutine
// turns frames into Events and applies roster side effects to the Session's
// roster.Directory.
//
// Example usage:
//
//	s, err := nmdc.NewSession(nmdc.Config{
//	    Address: "dc.example.org:411",
//	    Identity: nmdc.Identity{
//	        Nick:       "bot",
//	        Connection: "LAN(T3)",
//	        Slots:      3,
//	    },
//	}, roster.New(), logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	for ev := range s.Events() {
//	    switch ev := ev.(type) {
//	    case nmdc.PublicMessage:
//	        fmt.Printf("<%s> %s\n", ev.From, ev.Text)
//	    case nmdc.Disconnected:
//	        return
//	    }
//	}
package nmdc

import "time"

// ProtocolVersion is sent in $Version after the hub says $Hello.
const ProtocolVersion = "1.0091"

// Default tuning values applied by NewSession.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultTrailerWait      = 2 * time.Second
	DefaultEventBuffer      = 256
	DefaultMaxFrameSize     = 64 * 1024
)

// Identity is what the client announces about itself.
type Identity struct {
	// Nick is the username; it must not contain spaces, '$' or '|'.
	Nick string

	// Password is sent when the hub asks for one.
	Password string

	// Description is the free-text description in $MyINFO.
	Description string

	// Connection is the connection-type tag, e.g. "LAN(T3)".
	Connection string

	// Email is the advertised e-mail address.
	Email string

	// ShareSize is the declared share size in bytes.
	ShareSize int64

	// Slots is the declared number of upload slots.
	Slots int
}

// ActiveConfig enables active mode: search replies arrive over UDP.
type ActiveConfig struct {
	// ListenAddr is the local UDP address, e.g. ":412".
	ListenAddr string

	// PublicIP is the address advertised in active searches. When empty,
	// the local address of the hub connection is used.
	PublicIP string
}

// Config contains session configuration.
type Config struct {
	// Address is the hub's host:port.
	Address string

	// Identity is announced during the handshake.
	Identity Identity

	// Active enables active mode when non-nil.
	Active *ActiveConfig

	// Encoding is the hub's text encoding (e.g. "windows-1252").
	// Empty or "utf-8" means frames are passed through unchanged.
	Encoding string

	// DialTimeout bounds the TCP connect. Default: 10s.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the whole handshake. Default: 30s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds every write to the hub. Default: 10s.
	WriteTimeout time.Duration

	// TrailerWait bounds the wait for the frame that follows the nick
	// list. Default: 2s.
	TrailerWait time.Duration

	// EventBuffer is the capacity of the event channel. Default: 256.
	EventBuffer int

	// MaxFrameSize is the largest accepted frame. Default: 64 KiB.
	MaxFrameSize int

	// Metrics receives per-frame counters. Default: no-op.
	Metrics Metrics
}

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// FrameReceived counts a frame by its command name.
	FrameReceived(command string)

	// FrameDropped counts a frame the engine ignored, by reason.
	FrameDropped(reason string)

	// CommandSent counts an outgoing command by its name.
	CommandSent(command string)
}

type noopMetrics struct{}

func (noopMetrics) FrameReceived(string) {}
func (noopMetrics) FrameDropped(string)  {}
func (noopMetrics) CommandSent(string)   {}

// State is the handshake state of a Session.
type State int32

// Session states. Transitions only move forward.
const (
	StateDisconnected State = iota
	StateAwaitingLock
	StateAwaitingHello
	StateConnected
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingLock:
		return "awaiting-lock"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Match is one share entry the application wants to offer in reply to a
// search. The engine fills in identity, slots and hub details.
type Match struct {
	// Path is the shared path, with '\' separators.
	Path string

	// Size is the file size in bytes; ignored for directories.
	Size int64

	// IsDir marks a directory match.
	IsDir bool

	// TTH is the optional Tiger Tree Hash root of a file.
	TTH string
}
