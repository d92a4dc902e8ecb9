package nmdc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns at most chunk bytes per Read, like a TCP stream
// delivering a frame across several segments.
type chunkedReader struct {
	data  []byte
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// flakyReader fails once with errTransient before serving its data.
type flakyReader struct {
	first  []byte
	failed bool
	rest   []byte
}

var errTransient = errors.New("transient")

func (r *flakyReader) Read(p []byte) (int, error) {
	if len(r.first) > 0 {
		n := copy(p, r.first)
		r.first = r.first[n:]
		return n, nil
	}
	if !r.failed {
		r.failed = true
		return 0, errTransient
	}
	if len(r.rest) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

func readAll(t *testing.T, fr *FrameReader) []string {
	t.Helper()
	var frames []string
	for {
		f, err := fr.ReadFrame()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, string(f))
	}
}

func TestReadFrameSplitsOnDelimiter(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("$Lock abc Pk=x|$HubName Test|<bob> hi|"), 0)

	assert.Equal(t, []string{"$Lock abc Pk=x", "$HubName Test", "<bob> hi"}, readAll(t, fr))
}

func TestReadFrameSkipsEmptyFrames(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("||$Quit a|||$Quit b|"), 0)

	assert.Equal(t, []string{"$Quit a", "$Quit b"}, readAll(t, fr))
}

func TestReadFrameAcrossPartialReads(t *testing.T) {
	stream := "$NickList alice$$bob$$|$Hello carol|<alice> a longer message body|"

	for _, chunk := range []int{1, 2, 3, 7, 64} {
		fr := NewFrameReader(&chunkedReader{data: []byte(stream), chunk: chunk}, 0)
		assert.Equal(t,
			[]string{"$NickList alice$$bob$$", "$Hello carol", "<alice> a longer message body"},
			readAll(t, fr), "chunk size %d", chunk)
	}
}

func TestReadFrameUnterminatedTail(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("$Hello a|$Hel"), 0)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "$Hello a", string(f))

	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameKeepsPartialDataAcrossErrors(t *testing.T) {
	fr := NewFrameReader(&flakyReader{first: []byte("$Hel"), rest: []byte("lo bob|")}, 0)

	_, err := fr.ReadFrame()
	require.ErrorIs(t, err, errTransient)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "$Hello bob", string(f))
}

func TestReadFrameTooLarge(t *testing.T) {
	big := strings.Repeat("x", 10000)
	fr := NewFrameReader(strings.NewReader("$Hello a|"+big+"|$Hello b|"), 100)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "$Hello a", string(f))

	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "$Hello b", string(f))
}

func TestReadFrameExactlyAtLimit(t *testing.T) {
	frame := strings.Repeat("y", 100)
	fr := NewFrameReader(strings.NewReader(frame+"|"), 100)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frame, string(f))
}

func TestReadFramePreservesRawBytes(t *testing.T) {
	raw := []byte{'$', 'L', 'o', 'c', 'k', ' ', 0x01, 0xff, 0x05, 0x80}
	fr := NewFrameReader(bytes.NewReader(append(raw, '|')), 0)

	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, raw, f)
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a|b", "a&#124;b"},
		{"cost $5", "cost &#36;5"},
		{"R&D", "R&amp;D"},
		{"&#36;", "&amp;#36;"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := EscapeText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, UnescapeText(got))
		})
	}
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "<chat>", commandName("<bob> hi"))
	assert.Equal(t, "$Search", commandName("$Search Hub:a F?T?0?1?x"))
	assert.Equal(t, "$GetNickList", commandName("$GetNickList"))
	assert.Equal(t, "unknown", commandName("garbage"))
}
