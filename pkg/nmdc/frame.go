package nmdc

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	// Delimiter terminates every frame.
	Delimiter = '|'

	// FieldSeparator separates structural fields inside $SR.
	FieldSeparator = '\x05'
)

// FrameReader splits a byte stream into pipe-delimited frames.
//
// Partial data survives read errors such as deadline timeouts, so a caller
// may retry ReadFrame after a timeout without losing bytes.
type FrameReader struct {
	r        *bufio.Reader
	max      int
	pending  []byte
	skipping bool
}

// NewFrameReader creates a reader that rejects frames longer than maxSize
// bytes. A non-positive maxSize selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		r:   bufio.NewReaderSize(r, 4096),
		max: maxSize,
	}
}

// ReadFrame returns the next non-empty frame without its delimiter.
//
// An oversized frame is discarded up to its delimiter and reported as
// ErrFrameTooLarge; the stream stays in sync and the next call continues
// with the following frame.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	for {
		chunk, err := f.r.ReadSlice(Delimiter)
		if !f.skipping {
			f.pending = append(f.pending, chunk...)
			if len(f.pending) > f.max+1 {
				f.pending = f.pending[:0]
				f.skipping = true
			}
		}

		switch {
		case err == nil:
			if f.skipping {
				f.skipping = false
				return nil, ErrFrameTooLarge
			}
			n := len(f.pending) - 1
			if n == 0 {
				f.pending = f.pending[:0]
				continue
			}
			frame := make([]byte, n)
			copy(frame, f.pending[:n])
			f.pending = f.pending[:0]
			return frame, nil

		case errors.Is(err, bufio.ErrBufferFull):
			continue

		default:
			return nil, err
		}
	}
}

var (
	textEscaper   = strings.NewReplacer("&", "&amp;", "$", "&#36;", "|", "&#124;")
	textUnescaper = strings.NewReplacer("&#36;", "$", "&#124;", "|", "&amp;", "&")
)

// EscapeText makes chat text safe to embed in a frame.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// UnescapeText reverses EscapeText.
func UnescapeText(s string) string {
	return textUnescaper.Replace(s)
}

// commandName returns the command token used for logging and metrics.
func commandName(frame string) string {
	switch {
	case strings.HasPrefix(frame, "<"):
		return "<chat>"
	case strings.HasPrefix(frame, "$"):
		if sp := strings.IndexByte(frame, ' '); sp > 0 {
			return frame[:sp]
		}
		return frame
	default:
		return "unknown"
	}
}
