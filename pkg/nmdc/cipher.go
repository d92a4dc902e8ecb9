package nmdc

import (
	"bytes"
	"fmt"
	"strings"
)

// keyEscapes maps the byte values that collide with protocol control
// characters to the tokens that replace them in a key.
var keyEscapes = [256]string{
	0:   "/%DCN000%/",
	5:   "/%DCN005%/",
	36:  "/%DCN036%/",
	96:  "/%DCN096%/",
	124: "/%DCN124%/",
	126: "/%DCN126%/",
}

// ComputeKey converts a hub lock into the key that authenticates the
// connection. It is pure and deterministic.
//
// For locks shorter than three bytes the missing operands of the first
// byte's XOR read as zero.
func ComputeKey(lock []byte) []byte {
	n := len(lock)
	if n == 0 {
		return nil
	}

	at := func(i int) byte {
		if i < 0 {
			return 0
		}
		return lock[i]
	}

	k := make([]byte, n)
	k[0] = lock[0] ^ at(n-1) ^ at(n-2) ^ 5
	for i := 1; i < n; i++ {
		k[i] = lock[i] ^ lock[i-1]
	}

	var out bytes.Buffer
	out.Grow(n + 16)
	for _, b := range k {
		b = (b << 4) | (b >> 4)
		if esc := keyEscapes[b]; esc != "" {
			out.WriteString(esc)
			continue
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}

// ComputeKeyString is ComputeKey for callers holding the lock as a string.
func ComputeKeyString(lock string) string {
	return string(ComputeKey([]byte(lock)))
}

// ExtractLock returns the lock value of a "$Lock <lock> Pk=<pk>" frame.
func ExtractLock(frame []byte) ([]byte, error) {
	const prefix = "$Lock "

	if !bytes.HasPrefix(frame, []byte(prefix)) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedLock, truncate(string(frame)))
	}

	lock := frame[len(prefix):]
	if sp := bytes.IndexByte(lock, ' '); sp >= 0 {
		lock = lock[:sp]
	}
	if len(lock) == 0 {
		return nil, fmt.Errorf("%w: empty lock", ErrMalformedLock)
	}
	return lock, nil
}

// truncate shortens frame text for error messages and log lines.
func truncate(s string) string {
	const maxLen = 100

	if len(s) <= maxLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxLen], "") + "..."
}
