package nmdc

import (
	"errors"
	"fmt"
)

// Common errors returned by the nmdc package.
var (
	// ErrTransport wraps every socket-level failure: dial, read, write, or
	// an unexpected end of stream.
	ErrTransport = errors.New("hub transport failure")

	// ErrNickRejected is returned when the hub answers $ValidateDenide.
	ErrNickRejected = errors.New("nickname rejected by hub")

	// ErrBadPassword is returned when the hub answers $BadPass.
	ErrBadPassword = errors.New("password rejected by hub")

	// ErrPasswordRequired is returned when the hub asks for a password and
	// none is configured.
	ErrPasswordRequired = errors.New("hub requires a password")

	// ErrMalformedLock is returned when the first frame is not a $Lock.
	ErrMalformedLock = errors.New("malformed $Lock frame")

	// ErrMalformedSearch is returned when a $Search frame does not carry
	// exactly five '?'-separated fields.
	ErrMalformedSearch = errors.New("malformed $Search frame")

	// ErrMalformedResult is returned when a $SR frame cannot be decoded.
	ErrMalformedResult = errors.New("malformed $SR frame")

	// ErrFrameTooLarge is returned for a frame longer than the reader limit.
	// The frame is skipped and reading can continue.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrNotConnected is returned by send operations before Connect succeeds.
	ErrNotConnected = errors.New("session is not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrInvalidConfig is returned by NewSession for unusable configuration.
	ErrInvalidConfig = errors.New("invalid session configuration")
)

// AuthError reports that the hub refused the identity during the handshake.
// It is distinct from transport failures: retrying with the same identity
// will fail the same way.
type AuthError struct {
	Nick string // Nick that was refused
	Err  error  // ErrNickRejected, ErrBadPassword or ErrPasswordRequired
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %q: %v", e.Nick, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is a hub refusal of the identity.
func IsAuthFailure(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// transportError wraps err so that errors.Is(err, ErrTransport) holds.
func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
