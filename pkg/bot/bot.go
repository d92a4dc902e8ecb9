package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/status"
	"github.com/applegrew/jdcbot-sub001/pkg/ticker"
)

// Bot keeps a hub session alive and reacts to its events.
type Bot struct {
	config  Config
	logger  logger.Logger
	dir     *roster.Directory
	metrics Metrics

	mu         sync.RWMutex
	running    bool
	session    *nmdc.Session
	since      time.Time
	reconnects int
}

// New creates a bot. It validates the session configuration up front so
// that Run only fails on network or hub errors.
func New(cfg Config, log logger.Logger) (*Bot, error) {
	if cfg.Session.Address == "" {
		return nil, fmt.Errorf("%w: hub address is required", ErrInvalidConfig)
	}
	if err := nmdc.ValidateNick(cfg.Session.Identity.Nick); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 5 * time.Minute
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = 30 * time.Minute
	}
	if cfg.MaxReconnects < 0 {
		return nil, fmt.Errorf("%w: max reconnects must not be negative", ErrInvalidConfig)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Session.Metrics == nil {
		cfg.Session.Metrics = cfg.Metrics
	}
	if log == nil {
		log = logger.Noop()
	}

	return &Bot{
		config:  cfg,
		logger:  log,
		dir:     roster.New(),
		metrics: cfg.Metrics,
	}, nil
}

// Run connects and serves the hub until ctx is cancelled, the hub refuses
// the identity, or MaxReconnects consecutive attempts have failed. It
// returns nil after cancellation.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	delay := b.config.ReconnectDelay
	failures := 0

	for {
		connected, err := b.runSession(ctx)
		if ctx.Err() != nil {
			b.logger.Info("bot stopped")
			return nil
		}
		if nmdc.IsAuthFailure(err) {
			b.logger.Error("hub refused identity", "error", err)
			return err
		}

		if connected {
			// The session worked; start the backoff over.
			delay = b.config.ReconnectDelay
			failures = 0
		}
		failures++
		if b.config.MaxReconnects > 0 && failures > b.config.MaxReconnects {
			return fmt.Errorf("%w: %d attempts, last error: %v", ErrTooManyReconnects, b.config.MaxReconnects, err)
		}

		b.logger.Warn("hub connection lost, reconnecting",
			"error", err,
			"delay", delay,
			"attempt", failures)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info("bot stopped")
			return nil
		case <-timer.C:
		}

		b.mu.Lock()
		b.reconnects++
		b.mu.Unlock()
		b.metrics.Reconnect()

		delay *= 2
		if delay > b.config.MaxReconnectDelay {
			delay = b.config.MaxReconnectDelay
		}
	}
}

// runSession runs one session to completion. connected reports whether
// the handshake succeeded.
func (b *Bot) runSession(ctx context.Context) (connected bool, err error) {
	sess, err := nmdc.NewSession(b.config.Session, b.dir, b.logger)
	if err != nil {
		return false, err
	}
	if err := sess.Connect(ctx); err != nil {
		return false, err
	}

	b.setSession(sess)
	defer b.setSession(nil)

	stop := context.AfterFunc(ctx, func() {
		_ = sess.Close()
	})
	defer stop()

	b.metrics.SetUsersOnline(b.dir.Len())

	if b.config.Announce != "" {
		t, err := ticker.New(b.config.AnnounceInterval, func(context.Context) {
			if err := sess.SendPublic(b.config.Announce); err != nil {
				b.logger.Warn("announcement failed", "error", err)
			}
		}, b.logger)
		if err != nil {
			_ = sess.Close()
			return true, err
		}
		if err := t.Start(); err != nil {
			_ = sess.Close()
			return true, err
		}
		defer func() {
			if err := t.Stop(); err != nil && !errors.Is(err, ticker.ErrTaskNotRunning) {
				b.logger.Warn("failed to stop announcer", "error", err)
			}
		}()
	}

	var lastErr error
	for ev := range sess.Events() {
		if d, ok := ev.(nmdc.Disconnected); ok {
			lastErr = d.Err
			continue
		}
		b.handle(sess, ev)
	}
	_ = sess.Close()

	b.dir.LoadAll(nil)
	b.metrics.SetUsersOnline(0)

	if lastErr == nil {
		lastErr = nmdc.ErrSessionClosed
	}
	return true, lastErr
}

func (b *Bot) handle(sess *nmdc.Session, ev nmdc.Event) {
	switch e := ev.(type) {
	case nmdc.UserJoined:
		b.metrics.SetUsersOnline(b.dir.Len())
		if b.config.Greeting != "" {
			b.send(sess.SendPublic(expand(b.config.Greeting, e.Nick)), "greeting")
		}

	case nmdc.UserQuit:
		b.metrics.SetUsersOnline(b.dir.Len())

	case nmdc.PublicMessage:
		b.respond(sess, e.From, e.Text, false)

	case nmdc.PrivateMessage:
		b.respond(sess, e.From, e.Text, true)

	case nmdc.ChannelMessage:
		b.logger.Debug("channel message", "channel", e.Channel, "from", e.From)

	case nmdc.SearchReceived:
		b.answerSearch(sess, e.Request)

	case nmdc.SearchResultReceived:
		b.logger.Debug("search result", "nick", e.Result.Nick, "path", e.Result.Path)

	case nmdc.HubNameChanged:
		b.logger.Info("hub name changed", "name", e.Name)
	}
}

func (b *Bot) respond(sess *nmdc.Session, from, text string, private bool) {
	if from == sess.Nick() || b.config.Responses == nil {
		return
	}

	r, ok := b.config.Responses.Match(text)
	if !ok || !r.Scope.Allows(private) {
		return
	}

	reply := expand(r.Reply, from)
	if private {
		b.send(sess.SendPrivate(from, reply), "private reply")
	} else {
		b.send(sess.SendPublic(reply), "public reply")
	}
	b.metrics.ResponseSent(private)
	b.logger.Debug("response sent", "trigger", r.Trigger, "to", from, "private", private)
}

func (b *Bot) answerSearch(sess *nmdc.Session, req nmdc.SearchRequest) {
	if b.config.Share == nil {
		return
	}
	if req.Passive && req.Nick == sess.Nick() {
		return
	}

	limit := maxActiveResults
	if req.Passive {
		limit = maxPassiveResults
	}

	sent := 0
	for _, m := range b.config.Share.Search(req.Query) {
		if sent == limit {
			break
		}
		if !m.IsDir && !req.Query.AcceptsSize(m.Size) {
			continue
		}
		if err := sess.Reply(req, m); err != nil {
			b.logger.Warn("search reply failed", "to", req.Scope(), "error", err)
			break
		}
		sent++
	}

	if sent > 0 {
		b.metrics.SearchAnswered(sent)
		b.logger.Debug("search answered", "pattern", req.Query.Pattern, "results", sent)
	}
}

func (b *Bot) send(err error, what string) {
	if err != nil {
		b.logger.Warn("send failed", "what", what, "error", err)
	}
}

func (b *Bot) setSession(sess *nmdc.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = sess
	if sess != nil {
		b.since = time.Now()
	} else {
		b.since = time.Time{}
	}
}

// Session returns the live session, or nil between connections.
func (b *Bot) Session() *nmdc.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Users returns the current roster; empty while disconnected.
func (b *Bot) Users() []roster.User {
	return b.dir.All()
}

// Snapshot returns the bot state for the status server.
func (b *Bot) Snapshot() status.Snapshot {
	b.mu.RLock()
	sess, since, reconnects := b.session, b.since, b.reconnects
	b.mu.RUnlock()

	snap := status.Snapshot{
		State:      nmdc.StateDisconnected.String(),
		Hub:        b.config.Session.Address,
		Nick:       b.config.Session.Identity.Nick,
		Users:      b.dir.Len(),
		Reconnects: reconnects,
		Since:      since,
	}
	if sess != nil {
		state := sess.State()
		snap.State = state.String()
		snap.Connected = state == nmdc.StateConnected
		snap.HubName = sess.HubName()
	}
	return snap
}

func expand(template, nick string) string {
	return strings.ReplaceAll(template, nickPlaceholder, nick)
}
