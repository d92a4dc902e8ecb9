package nmdc

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// textCodec converts frame text between the hub's charset and UTF-8.
// A nil encoding passes bytes through unchanged.
type textCodec struct {
	enc encoding.Encoding
}

// newTextCodec resolves a charset label such as "windows-1252" or "latin1".
func newTextCodec(label string) (*textCodec, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return &textCodec{}, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidConfig, label)
	}
	return &textCodec{enc: enc}, nil
}

// decode converts hub bytes to a UTF-8 string.
func (c *textCodec) decode(b []byte) string {
	if c.enc == nil {
		return string(b)
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// encode converts a UTF-8 string to hub bytes; unrepresentable runes
// become the charset's replacement byte.
func (c *textCodec) encode(s string) []byte {
	if c.enc == nil {
		return []byte(s)
	}
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
