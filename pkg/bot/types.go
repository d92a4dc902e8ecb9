// Package bot runs a long-lived hub client on top of an nmdc.Session.
//
// A Bot keeps one session alive, reconnecting with exponential backoff
// when the hub drops it. While connected it answers chat from the
// responses store, greets joining users, posts periodic announcements and
// answers hub searches from an optional Share.
//
// Example usage:
//
//	b, err := bot.New(bot.Config{
//	    Session:   sessionCfg,
//	    Greeting:  "Welcome {nick}!",
//	    Responses: store,
//	}, log)
//	if err != nil {
//	    return err
//	}
//	return b.Run(ctx)
package bot

import (
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/responses"
)

// Responder finds the stored response for a chat line.
type Responder interface {
	Match(text string) (*responses.Response, bool)
}

// Share answers hub searches.
type Share interface {
	// Search returns the matches for q. Results beyond the per-request
	// limit are dropped by the bot.
	Search(q nmdc.SearchQuery) []nmdc.Match
}

// Metrics receives bot counters on top of the session's.
type Metrics interface {
	nmdc.Metrics

	Reconnect()
	SearchAnswered(n int)
	ResponseSent(private bool)
	SetUsersOnline(n int)
}

// Config contains bot configuration.
type Config struct {
	// Session configures every hub session the bot opens.
	Session nmdc.Config

	// Greeting is posted to main chat when a user joins. "{nick}" is
	// replaced with the user's nick. Empty disables greetings.
	Greeting string

	// Announce is posted to main chat every AnnounceInterval.
	// Empty disables announcements.
	Announce string

	// AnnounceInterval is the announcement period.
	// Default: 30m.
	AnnounceInterval time.Duration

	// ReconnectDelay is the first wait before reconnecting. It doubles
	// after every failed attempt up to MaxReconnectDelay.
	// Default: 5s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the backoff.
	// Default: 5m.
	MaxReconnectDelay time.Duration

	// MaxReconnects stops Run after this many consecutive failed
	// reconnects. Zero means unlimited.
	MaxReconnects int

	// Responses answers chat. Optional.
	Responses Responder

	// Share answers searches. Optional.
	Share Share

	// Metrics receives counters. Optional; it is also installed as the
	// session's Metrics unless that is already set.
	Metrics Metrics
}

// Maximum number of results sent per search request.
const (
	maxPassiveResults = 5
	maxActiveResults  = 10
)

// Nick placeholder expanded in greetings and replies.
const nickPlaceholder = "{nick}"

type noopMetrics struct{}

func (noopMetrics) FrameReceived(string) {}
func (noopMetrics) FrameDropped(string)  {}
func (noopMetrics) CommandSent(string)   {}
func (noopMetrics) Reconnect()           {}
func (noopMetrics) SearchAnswered(int)   {}
func (noopMetrics) ResponseSent(bool)    {}
func (noopMetrics) SetUsersOnline(int)   {}
