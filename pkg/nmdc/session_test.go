package nmdc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

const testLock = "EXTENDEDPROTOCOL_ABCDEF"

// fakeHub is a scripted hub on a loopback listener.
type fakeHub struct {
	ln   net.Listener
	conn net.Conn
	fr   *FrameReader
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := &fakeHub{ln: ln}
	t.Cleanup(func() {
		_ = ln.Close()
		if h.conn != nil {
			_ = h.conn.Close()
		}
	})
	return h
}

func (h *fakeHub) addr() string {
	return h.ln.Addr().String()
}

func (h *fakeHub) accept(t *testing.T) {
	t.Helper()
	conn, err := h.ln.Accept()
	require.NoError(t, err)
	h.conn = conn
	h.fr = NewFrameReader(conn, 0)
}

func (h *fakeHub) send(t *testing.T, frames string) {
	t.Helper()
	_, err := h.conn.Write([]byte(frames))
	require.NoError(t, err)
}

func (h *fakeHub) expectRaw(t *testing.T) []byte {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	f, err := h.fr.ReadFrame()
	require.NoError(t, err)
	return f
}

func (h *fakeHub) expect(t *testing.T) string {
	t.Helper()
	return string(h.expectRaw(t))
}

// greet runs the hub side of a handshake up to and including the nick
// list, then sends tail.
func (h *fakeHub) greet(t *testing.T, nick, beforeList, nickList, tail string) {
	t.Helper()
	h.accept(t)
	h.send(t, "$Lock "+testLock+" Pk=fakehub|")

	key := h.expectRaw(t)
	assert.Equal(t, append([]byte("$Key "), ComputeKey([]byte(testLock))...), key)
	assert.Equal(t, "$ValidateNick "+nick, h.expect(t))

	h.send(t, "$HubName Test Hub|$Hello "+nick+"|")
	assert.Equal(t, "$Version "+ProtocolVersion, h.expect(t))
	assert.Equal(t, "$GetNickList", h.expect(t))
	assert.True(t, strings.HasPrefix(h.expect(t), "$MyINFO $ALL "+nick+" "))

	h.send(t, beforeList+"$NickList "+nickList+"|"+tail)
}

func newTestSession(t *testing.T, addr string, mutate func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		Address: addr,
		Identity: Identity{
			Nick:        "me",
			Description: "test bot",
			Connection:  "LAN(T3)",
			Slots:       2,
		},
		TrailerWait:      200 * time.Millisecond,
		HandshakeTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession(cfg, roster.New(), logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connectAsync(s *Session) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.Connect(context.Background())
	}()
	return errc
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSessionHandshake(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), nil)
	errc := connectAsync(s)

	hub.greet(t, "me", "<alice> early|", "alice$$bob$$me$$", "$OpList alice$$|")

	assert.Equal(t, "$GetINFO alice me", hub.expect(t))
	assert.Equal(t, "$GetINFO bob me", hub.expect(t))
	require.NoError(t, <-errc)

	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, "Test Hub", s.HubName())
	assert.True(t, s.Directory().Exists("alice"))
	assert.True(t, s.Directory().Exists("bob"))

	// Frames that arrived before the nick list are delivered after it.
	assert.Equal(t, PublicMessage{From: "alice", Text: "early"}, nextEvent(t, s))

	hub.send(t, "$Hello carol|<carol> hi all|$Quit bob|")
	assert.Equal(t, UserJoined{Nick: "carol"}, nextEvent(t, s))
	assert.Equal(t, PublicMessage{From: "carol", Text: "hi all"}, nextEvent(t, s))
	assert.Equal(t, UserQuit{Nick: "bob"}, nextEvent(t, s))
	assert.False(t, s.Directory().Exists("bob"))
}

func TestSessionHandshakeWithoutTrailer(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), nil)
	errc := connectAsync(s)

	hub.greet(t, "me", "", "alice$$", "")
	assert.Equal(t, "$GetINFO alice me", hub.expect(t))

	require.NoError(t, <-errc)
	assert.Equal(t, StateConnected, s.State())
}

func TestSessionPassword(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), func(c *Config) { c.Identity.Password = "secret" })
	errc := connectAsync(s)

	hub.accept(t)
	hub.send(t, "$Lock "+testLock+" Pk=fakehub|")
	hub.expect(t)
	hub.expect(t)
	hub.send(t, "$GetPass|")
	assert.Equal(t, "$MyPass secret", hub.expect(t))
	hub.send(t, "$BadPass|")

	err := <-errc
	require.Error(t, err)
	assert.True(t, IsAuthFailure(err))
	assert.ErrorIs(t, err, ErrBadPassword)
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionAuthFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  error
	}{
		{"nick rejected", "$ValidateDenide me|", ErrNickRejected},
		{"password required", "$GetPass|", ErrPasswordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newFakeHub(t)
			s := newTestSession(t, hub.addr(), nil)
			errc := connectAsync(s)

			hub.accept(t)
			hub.send(t, "$Lock "+testLock+" Pk=fakehub|")
			hub.expect(t)
			hub.expect(t)
			hub.send(t, tt.reply)

			err := <-errc
			assert.True(t, IsAuthFailure(err))
			assert.ErrorIs(t, err, tt.want)

			// The event stream of a failed session is closed.
			_, ok := <-s.Events()
			assert.False(t, ok)
		})
	}
}

func TestSessionMalformedLock(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), nil)
	errc := connectAsync(s)

	hub.accept(t)
	hub.send(t, "$HubName Too Early|")

	err := <-errc
	assert.ErrorIs(t, err, ErrMalformedLock)
	assert.False(t, IsAuthFailure(err))
}

func TestSessionHubClosesDuringHandshake(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), nil)
	errc := connectAsync(s)

	hub.accept(t)
	hub.send(t, "$Lock "+testLock+" Pk=fakehub|")
	hub.expect(t)
	require.NoError(t, hub.conn.Close())

	err := <-errc
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSessionDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := newTestSession(t, addr, nil)
	err = s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrTransport)

	assert.ErrorIs(t, s.Connect(context.Background()), ErrSessionClosed)
}

func TestSessionConnectCancelled(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Connect(ctx) }()

	hub.accept(t)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not observe cancellation")
	}
}

func TestSessionSendBeforeConnect(t *testing.T) {
	s := newTestSession(t, "127.0.0.1:1", nil)

	assert.ErrorIs(t, s.SendPublic("hi"), ErrNotConnected)
	assert.ErrorIs(t, s.Search(SearchQuery{Pattern: "x"}), ErrNotConnected)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SendPublic("hi"), ErrSessionClosed)
}

func connectedSession(t *testing.T, mutate func(*Config)) (*Session, *fakeHub) {
	t.Helper()
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), mutate)
	errc := connectAsync(s)

	hub.greet(t, "me", "", "alice$$me$$", "")
	assert.Equal(t, "$GetINFO alice me", hub.expect(t))
	require.NoError(t, <-errc)
	return s, hub
}

func TestSessionSendMessages(t *testing.T) {
	s, hub := connectedSession(t, nil)

	require.NoError(t, s.SendPublic("costs $5 | cheap"))
	assert.Equal(t, "<me> costs &#36;5 &#124; cheap", hub.expect(t))

	require.NoError(t, s.SendPrivate("alice", "psst"))
	assert.Equal(t, "$To: alice From: me $<me> psst", hub.expect(t))

	require.NoError(t, s.SendRaw("$Custom one|$Custom two|"))
	assert.Equal(t, "$Custom one", hub.expect(t))
	assert.Equal(t, "$Custom two", hub.expect(t))

	require.NoError(t, s.SendCommand("$GetNickList"))
	assert.Equal(t, "$GetNickList", hub.expect(t))
}

func TestSessionPrivateAndChannelEvents(t *testing.T) {
	s, hub := connectedSession(t, nil)

	hub.send(t, "$To: me From: alice $<alice> hello|$To: me From: #chan $<bob> yo|")
	assert.Equal(t, PrivateMessage{From: "alice", Text: "hello"}, nextEvent(t, s))
	assert.Equal(t, ChannelMessage{Channel: "#chan", From: "bob", Text: "yo"}, nextEvent(t, s))
}

func TestSessionPassiveSearchAndReply(t *testing.T) {
	s, hub := connectedSession(t, nil)

	require.NoError(t, s.Search(SearchQuery{Pattern: "linux iso", Type: DataAny}))
	assert.Equal(t, "$Search Hub:me F?T?0?1?linux$iso", hub.expect(t))

	hub.send(t, "$Search Hub:alice F?T?0?1?song|")
	ev := nextEvent(t, s)
	req := ev.(SearchReceived).Request
	require.True(t, req.Passive)

	require.NoError(t, s.Reply(req, Match{Path: `music\song.mp3`, Size: 42}))
	frame := hub.expect(t)
	res, err := DecodeResult(frame)
	require.NoError(t, err)
	assert.Equal(t, "me", res.Nick)
	assert.Equal(t, int64(42), res.Size)
	assert.Equal(t, "alice", res.Target)
	assert.Equal(t, "Test Hub", res.HubName)
	assert.Equal(t, hub.addr(), res.HubAddr)
	assert.Equal(t, 2, res.TotalSlots)

	hub.send(t, "$SR alice a.txt\x051 1/1\x05Hub (1.1.1.1:411)\x05me|")
	got := nextEvent(t, s).(SearchResultReceived).Result
	assert.Equal(t, "hub", got.Source)
}

func TestSessionActiveSearch(t *testing.T) {
	s, hub := connectedSession(t, func(c *Config) {
		c.Active = &ActiveConfig{ListenAddr: "127.0.0.1:0", PublicIP: "127.0.0.1"}
	})
	udpAddr := s.UDPAddr()
	require.NotEmpty(t, udpAddr)

	require.NoError(t, s.Search(SearchQuery{Pattern: "x", Type: DataAny}))
	assert.Equal(t, "$Search "+udpAddr+" F?T?0?1?x", hub.expect(t))

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	dst, err := net.ResolveUDPAddr("udp", udpAddr)
	require.NoError(t, err)
	_, err = peer.WriteTo([]byte("$SR peer x.bin\x05100 1/2\x05Hub (1.1.1.1:411)|"), dst)
	require.NoError(t, err)

	res := nextEvent(t, s).(SearchResultReceived).Result
	assert.Equal(t, "peer", res.Nick)
	assert.Equal(t, int64(100), res.Size)
	assert.Equal(t, peer.LocalAddr().String(), res.Source)

	// Replying to an active searcher goes over UDP, not the hub.
	req := SearchRequest{Addr: peer.LocalAddr().String(), Query: SearchQuery{Pattern: "x"}}
	require.NoError(t, s.Reply(req, Match{Path: "dir", IsDir: true}))

	buf := make([]byte, 1024)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	datagram := string(buf[:n])
	assert.True(t, strings.HasSuffix(datagram, "|"))

	reply, err := DecodeResult(datagram)
	require.NoError(t, err)
	assert.True(t, reply.IsDir)
	assert.Empty(t, reply.Target)
}

func TestSessionHubDisconnect(t *testing.T) {
	s, hub := connectedSession(t, nil)

	require.NoError(t, hub.conn.Close())

	ev := nextEvent(t, s)
	disc, ok := ev.(Disconnected)
	require.True(t, ok)
	assert.ErrorIs(t, disc.Err, ErrTransport)

	_, open := <-s.Events()
	assert.False(t, open)
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.SendPublic("anyone?"), ErrSessionClosed)
}

func TestSessionClose(t *testing.T) {
	s, _ := connectedSession(t, nil)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	var last Event
	for ev := range s.Events() {
		last = ev
	}
	disc, ok := last.(Disconnected)
	require.True(t, ok)
	assert.NoError(t, disc.Err)
}

func TestSessionOversizedFrameSkipped(t *testing.T) {
	s, hub := connectedSession(t, func(c *Config) { c.MaxFrameSize = 64 })

	hub.send(t, "<alice> "+strings.Repeat("z", 500)+"|<alice> short|")
	assert.Equal(t, PublicMessage{From: "alice", Text: "short"}, nextEvent(t, s))
}

func TestSessionCharset(t *testing.T) {
	hub := newFakeHub(t)
	s := newTestSession(t, hub.addr(), func(c *Config) { c.Encoding = "windows-1252" })
	errc := connectAsync(s)

	hub.greet(t, "me", "", "alice$$", "")
	hub.expect(t)
	require.NoError(t, <-errc)

	hub.send(t, "<alice> caf\xe9|")
	assert.Equal(t, PublicMessage{From: "alice", Text: "café"}, nextEvent(t, s))

	require.NoError(t, s.SendPublic("né"))
	assert.Equal(t, []byte("<me> n\xe9"), hub.expectRaw(t))
}

func TestNewSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing address", Config{Identity: Identity{Nick: "me"}}},
		{"missing nick", Config{Address: "h:411"}},
		{"nick with space", Config{Address: "h:411", Identity: Identity{Nick: "a b"}}},
		{"nick with pipe", Config{Address: "h:411", Identity: Identity{Nick: "a|b"}}},
		{"unknown encoding", Config{Address: "h:411", Identity: Identity{Nick: "me"}, Encoding: "klingon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.cfg, nil, nil)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}
