package nmdc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

// clientTag is the client/version part of the $MyINFO tag.
const clientTag = "nmdcbot V:1.0"

// maxDatagram is the largest UDP datagram the active listener accepts.
const maxDatagram = 64 * 1024

// Session is one client connection to an NMDC hub.
//
// Connect runs the handshake on the caller's goroutine. After it returns
// nil, a reader goroutine owns the socket's read side and delivers Events
// until the connection ends; sends may be made from any goroutine.
type Session struct {
	cfg     Config
	dir     *roster.Directory
	log     logger.Logger
	codec   *textCodec
	metrics Metrics

	state atomic.Int32

	mu      sync.RWMutex
	conn    net.Conn
	udp     net.PacketConn
	hubName string
	hubAddr string
	localIP string

	writeMu sync.Mutex
	frames  *FrameReader

	dispatcher *Dispatcher
	events     chan Event

	closing    chan struct{}
	closeOnce  sync.Once
	eventsOnce sync.Once
	readerWG   sync.WaitGroup
	udpWG      sync.WaitGroup
}

// NewSession creates a session for cfg. A nil dir gets a fresh roster.
func NewSession(cfg Config, dir *roster.Directory, log logger.Logger) (*Session, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: hub address is required", ErrInvalidConfig)
	}
	if err := ValidateNick(cfg.Identity.Nick); err != nil {
		return nil, err
	}

	codec, err := newTextCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if dir == nil {
		dir = roster.New()
	}
	if log == nil {
		log = logger.Noop()
	}

	s := &Session{
		cfg:     cfg,
		dir:     dir,
		log:     log.With("hub", cfg.Address, "nick", cfg.Identity.Nick),
		codec:   codec,
		metrics: cfg.Metrics,
		events:  make(chan Event, cfg.EventBuffer),
		closing: make(chan struct{}),
	}

	s.dispatcher = NewDispatcher(cfg.Identity.Nick, dir, handshakeWriter{s}, s.log)
	s.dispatcher.metrics = cfg.Metrics
	s.dispatcher.onHubName = s.setHubName

	return s, nil
}

// ValidateNick checks that nick can be used on the wire.
func ValidateNick(nick string) error {
	if nick == "" {
		return fmt.Errorf("%w: nick is required", ErrInvalidConfig)
	}
	if strings.ContainsAny(nick, " $|") {
		return fmt.Errorf("%w: nick %q contains a reserved character", ErrInvalidConfig, nick)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.TrailerWait <= 0 {
		cfg.TrailerWait = DefaultTrailerWait
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.Identity.Slots <= 0 {
		cfg.Identity.Slots = 1
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
}

// Connect dials the hub and performs the handshake. It returns nil once the
// roster has been loaded from the nick list; events start flowing after
// that. A refused identity is reported as *AuthError, everything else as
// ErrTransport or ErrMalformedLock. A failed Connect leaves the session
// closed.
func (s *Session) Connect(ctx context.Context) error {
	if !s.advance(StateDisconnected, StateAwaitingLock) {
		if s.State() == StateClosed {
			return ErrSessionClosed
		}
		return ErrAlreadyConnected
	}

	s.log.Info("connecting to hub")

	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.abort()
		return transportError("dial", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.hubAddr = conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(conn.LocalAddr().String()); err == nil {
		s.localIP = host
	}
	s.mu.Unlock()
	if s.isClosing() {
		s.abort()
		return ErrSessionClosed
	}
	s.frames = NewFrameReader(conn, s.cfg.MaxFrameSize)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))

	backlog, err := s.handshake()
	if err != nil {
		s.abort()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return transportError("handshake", ctxErr)
		}
		return err
	}

	if !stop() && ctx.Err() != nil {
		s.abort()
		return transportError("handshake", ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})

	if err := s.openUDP(); err != nil {
		s.abort()
		return transportError("udp listen", err)
	}

	if !s.advance(StateAwaitingHello, StateConnected) {
		s.abort()
		return ErrSessionClosed
	}

	s.log.Info("connected to hub", "hub_name", s.HubName(), "users", s.dir.Len())

	s.readerWG.Add(1)
	go s.readLoop(backlog)

	return nil
}

// handshake runs the lock/key exchange and waits for the nick list. It
// returns the frames that arrived before the nick list, plus the trailer
// frame that follows it, for dispatch once the roster is loaded.
func (s *Session) handshake() ([]string, error) {
	nick := s.cfg.Identity.Nick

	raw, err := s.readHandshakeFrame()
	if err != nil {
		return nil, err
	}
	lock, err := ExtractLock(raw)
	if err != nil {
		return nil, err
	}

	key := ComputeKey(lock)
	frame := make([]byte, 0, len("$Key ")+len(key)+1)
	frame = append(frame, "$Key "...)
	frame = append(frame, key...)
	frame = append(frame, Delimiter)
	if err := s.write(frame, "$Key"); err != nil {
		return nil, err
	}
	if err := s.send("$ValidateNick " + nick); err != nil {
		return nil, err
	}
	s.advance(StateAwaitingLock, StateAwaitingHello)

	for hello := false; !hello; {
		raw, err := s.readHandshakeFrame()
		if err != nil {
			return nil, err
		}
		text := s.codec.decode(raw)

		switch {
		case text == "$Hello "+nick:
			hello = true
		case strings.HasPrefix(text, "$ValidateDenide"):
			return nil, &AuthError{Nick: nick, Err: ErrNickRejected}
		case strings.HasPrefix(text, "$BadPass"):
			return nil, &AuthError{Nick: nick, Err: ErrBadPassword}
		case strings.HasPrefix(text, "$GetPass"):
			if s.cfg.Identity.Password == "" {
				return nil, &AuthError{Nick: nick, Err: ErrPasswordRequired}
			}
			if err := s.send("$MyPass " + s.cfg.Identity.Password); err != nil {
				return nil, err
			}
		case strings.HasPrefix(text, "$HubName "):
			s.setHubName(text[len("$HubName "):])
		default:
			s.log.Debug("ignoring frame before hello", "command", commandName(text))
		}
	}

	for _, cmd := range []string{
		"$Version " + ProtocolVersion,
		"$GetNickList",
		s.myInfo(),
	} {
		if err := s.send(cmd); err != nil {
			return nil, err
		}
	}

	var backlog []string
	for {
		raw, err := s.readHandshakeFrame()
		if err != nil {
			return nil, err
		}
		text := s.codec.decode(raw)
		if payload, ok := strings.CutPrefix(text, "$NickList "); ok {
			s.dispatcher.LoadNickList(payload)
			break
		}
		backlog = append(backlog, text)
	}

	// Most hubs follow the nick list with an $OpList or a $MyINFO burst.
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.TrailerWait))
	raw, err = s.frames.ReadFrame()
	switch {
	case err == nil:
		backlog = append(backlog, s.codec.decode(raw))
	case isTimeout(err), errors.Is(err, ErrFrameTooLarge):
	default:
		return nil, transportError("handshake read", err)
	}

	return backlog, nil
}

func (s *Session) readHandshakeFrame() ([]byte, error) {
	for {
		raw, err := s.frames.ReadFrame()
		if errors.Is(err, ErrFrameTooLarge) {
			s.metrics.FrameDropped("too-large")
			continue
		}
		if err != nil {
			return nil, transportError("handshake read", err)
		}
		s.metrics.FrameReceived(commandName(string(raw)))
		return raw, nil
	}
}

// myInfo builds the $MyINFO announcement.
func (s *Session) myInfo() string {
	id := s.cfg.Identity
	mode := "P"
	if s.cfg.Active != nil {
		mode = "A"
	}
	tag := fmt.Sprintf("<%s,M:%s,H:1/0/0,S:%d>", clientTag, mode, id.Slots)

	return fmt.Sprintf("$MyINFO $ALL %s %s%s$ $%s\x01$%s$%d$",
		id.Nick, EscapeText(id.Description), tag,
		EscapeText(id.Connection), EscapeText(id.Email), id.ShareSize)
}

func (s *Session) openUDP() error {
	addr := ":0"
	if s.cfg.Active != nil {
		addr = s.cfg.Active.ListenAddr
	}

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		if s.cfg.Active != nil {
			return err
		}
		s.log.Warn("no UDP socket for search replies", "error", err)
		return nil
	}

	s.mu.Lock()
	s.udp = pc
	s.mu.Unlock()

	if s.cfg.Active != nil {
		s.log.Info("listening for search results", "addr", pc.LocalAddr().String())
		s.udpWG.Add(1)
		go s.udpLoop(pc)
	}
	return nil
}

func (s *Session) readLoop(backlog []string) {
	defer s.readerWG.Done()

	for _, text := range backlog {
		s.dispatch(text)
	}

	var readErr error
	for {
		raw, err := s.frames.ReadFrame()
		if errors.Is(err, ErrFrameTooLarge) {
			s.metrics.FrameDropped("too-large")
			s.log.Warn("oversized frame skipped", "limit", s.cfg.MaxFrameSize)
			continue
		}
		if err != nil {
			readErr = err
			break
		}
		s.dispatch(s.codec.decode(raw))
	}

	closedByUser := s.isClosing()
	s.state.Store(int32(StateClosed))
	s.closeConns()
	s.udpWG.Wait()

	ev := Disconnected{}
	if !closedByUser {
		ev.Err = transportError("read", readErr)
		s.log.Warn("hub connection lost", "error", readErr)
	} else {
		s.log.Info("session closed")
	}

	select {
	case s.events <- ev:
	case <-s.closing:
		select {
		case s.events <- ev:
		default:
		}
	}
	s.closeEvents()
}

func (s *Session) udpLoop(pc net.PacketConn) {
	defer s.udpWG.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("udp read failed", "error", err)
			continue
		}

		for _, raw := range bytes.Split(buf[:n], []byte{Delimiter}) {
			if len(raw) == 0 {
				continue
			}
			text := s.codec.decode(raw)
			s.metrics.FrameReceived(commandName(text))

			res, err := DecodeResult(text)
			if err != nil {
				s.metrics.FrameDropped("malformed-result")
				s.log.Debug("bad udp datagram", "from", from.String(), "error", err)
				continue
			}
			res.Source = from.String()
			if !s.emit(SearchResultReceived{Result: res}) {
				return
			}
		}
	}
}

func (s *Session) dispatch(text string) {
	if ev, ok := s.dispatcher.Dispatch(text); ok {
		s.emit(ev)
	}
}

// emit delivers ev, giving up when the session is closing.
func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		return false
	}
}

// Events returns the event stream. Disconnected is always the last event
// and the channel is closed after it.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SendCommand sends cmd followed by the delimiter.
func (s *Session) SendCommand(cmd string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.send(cmd)
}

// SendRaw writes frame exactly as given: no delimiter is appended and no
// charset conversion or validation is applied.
func (s *Session) SendRaw(frame string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.write([]byte(frame), commandName(frame))
}

// SendPublic posts text to main chat.
func (s *Session) SendPublic(text string) error {
	return s.SendCommand("<" + s.cfg.Identity.Nick + "> " + EscapeText(text))
}

// SendPrivate sends text privately to nick.
func (s *Session) SendPrivate(nick, text string) error {
	self := s.cfg.Identity.Nick
	return s.SendCommand(fmt.Sprintf("$To: %s From: %s $<%s> %s", nick, self, self, EscapeText(text)))
}

// Search broadcasts q. Active sessions ask for replies over UDP; passive
// ones have them relayed by the hub.
func (s *Session) Search(q SearchQuery) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.send(EncodeSearch(s.searchScope(), q))
}

// Reply answers req with one match, over UDP for active searchers and
// through the hub for passive ones.
func (s *Session) Reply(req SearchRequest, m Match) error {
	if err := s.ready(); err != nil {
		return err
	}

	slots := s.cfg.Identity.Slots
	res := SearchResult{
		Nick:       s.cfg.Identity.Nick,
		Path:       m.Path,
		IsDir:      m.IsDir,
		FreeSlots:  slots,
		TotalSlots: slots,
		HubName:    s.HubName(),
		HubAddr:    s.HubAddr(),
		TTH:        m.TTH,
	}
	if !m.IsDir {
		res.Size = m.Size
	}

	if req.Passive {
		res.Target = req.Nick
		return s.send(EncodeResult(res))
	}
	return s.sendUDP(req.Addr, EncodeResult(res))
}

func (s *Session) searchScope() string {
	if s.cfg.Active == nil {
		return "Hub:" + s.cfg.Identity.Nick
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ip := s.cfg.Active.PublicIP
	if ip == "" {
		ip = s.localIP
	}
	port := "0"
	if s.udp != nil {
		if _, p, err := net.SplitHostPort(s.udp.LocalAddr().String()); err == nil {
			port = p
		}
	}
	return net.JoinHostPort(ip, port)
}

func (s *Session) sendUDP(addr, cmd string) error {
	s.mu.RLock()
	pc := s.udp
	s.mu.RUnlock()
	if pc == nil {
		return transportError("udp send", errors.New("no UDP socket"))
	}

	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return transportError("udp send", err)
	}

	if _, err := pc.WriteTo(append(s.codec.encode(cmd), Delimiter), dst); err != nil {
		return transportError("udp send", err)
	}
	s.metrics.CommandSent(commandName(cmd))
	return nil
}

// send encodes cmd and writes it with the delimiter, in any state.
func (s *Session) send(cmd string) error {
	return s.write(append(s.codec.encode(cmd), Delimiter), commandName(cmd))
}

func (s *Session) write(b []byte, name string) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return transportError("write", err)
	}
	if _, err := conn.Write(b); err != nil {
		return transportError("write", err)
	}

	s.metrics.CommandSent(name)
	s.log.Debug("command sent", "command", name)
	return nil
}

func (s *Session) ready() error {
	switch s.State() {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotConnected
	}
}

// Close ends the session and waits for the reader to finish. It is safe
// to call more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})

	prev := State(s.state.Swap(int32(StateClosed)))
	s.closeConns()
	s.readerWG.Wait()

	if prev != StateConnected {
		s.closeEvents()
	}
	return nil
}

// abort tears down a failed connect attempt.
func (s *Session) abort() {
	s.state.Store(int32(StateClosed))
	s.closeConns()
	s.udpWG.Wait()
	s.closeEvents()
}

func (s *Session) closeConns() {
	s.mu.RLock()
	conn, udp := s.conn, s.udp
	s.mu.RUnlock()

	if conn != nil {
		_ = conn.Close()
	}
	if udp != nil {
		_ = udp.Close()
	}
}

func (s *Session) closeEvents() {
	s.eventsOnce.Do(func() {
		close(s.events)
	})
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Session) advance(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) setHubName(name string) {
	s.mu.Lock()
	s.hubName = name
	s.mu.Unlock()
}

// State returns the current handshake state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// HubName returns the last name announced by the hub.
func (s *Session) HubName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hubName
}

// HubAddr returns the hub's ip:port as connected.
func (s *Session) HubAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hubAddr
}

// UDPAddr returns the local UDP address, or "" when there is none.
func (s *Session) UDPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.udp == nil {
		return ""
	}
	return s.udp.LocalAddr().String()
}

// Nick returns the session's own nick.
func (s *Session) Nick() string {
	return s.cfg.Identity.Nick
}

// Directory returns the roster maintained by the session.
func (s *Session) Directory() *roster.Directory {
	return s.dir
}

// Active reports whether the session runs in active mode.
func (s *Session) Active() bool {
	return s.cfg.Active != nil
}

// handshakeWriter lets the dispatcher send before the session reaches
// StateConnected.
type handshakeWriter struct {
	s *Session
}

func (w handshakeWriter) SendCommand(cmd string) error {
	return w.s.send(cmd)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
