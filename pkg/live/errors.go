package live

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by session methods called after Close.
var ErrClosed = errors.New("live: session closed")

// ErrorKind classifies session failures. Kinds double as the wire-level error
// codes surfaced to callers.
type ErrorKind string

const (
	// KindConnectionError covers transport failures: the connection cannot be
	// opened, dropped mid-stream, or a send failed. Retried by the reconnect
	// controller when enabled.
	KindConnectionError ErrorKind = "connection_error"

	// KindProtocolError covers malformed or unrecognized provider frames.
	// Surfaced as a warning event; the session stays open.
	KindProtocolError ErrorKind = "protocol_error"

	// KindReconnectExhausted is fatal: every reconnect attempt failed.
	KindReconnectExhausted ErrorKind = "reconnect_exhausted"

	// KindConfigError marks invalid session configuration, rejected before
	// anything touches the network.
	KindConfigError ErrorKind = "config_error"
)

// Error is the session error type. Kind carries the classification, Err the
// wrapped cause when one exists.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectionError wraps a transport failure.
func NewConnectionError(message string, cause error) *Error {
	return &Error{Kind: KindConnectionError, Message: message, Err: cause}
}

// NewProtocolError wraps a malformed or unexpected provider frame.
func NewProtocolError(message string, cause error) *Error {
	return &Error{Kind: KindProtocolError, Message: message, Err: cause}
}

// NewConfigError marks an invalid configuration value.
func NewConfigError(message string) *Error {
	return &Error{Kind: KindConfigError, Message: message}
}

func newReconnectExhausted(attempts int, cause error) *Error {
	return &Error{
		Kind:    KindReconnectExhausted,
		Message: fmt.Sprintf("gave up after %d reconnect attempts", attempts),
		Err:     cause,
	}
}

// IsKind reports whether err is (or wraps) a session Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
