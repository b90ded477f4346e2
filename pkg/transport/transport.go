// Package transport provides the duplex message transport used by live
// sessions. A Client owns exactly one connection to a provider endpoint and
// surfaces inbound traffic as a bounded channel of frames, so a slow consumer
// applies backpressure all the way down to the socket read.
package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrClosed is returned by Send after the client has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Frame is one discrete duplex message unit. Binary frames carry raw payloads
// (provider protocols that frame audio outside JSON), text frames carry JSON.
type Frame struct {
	Binary bool
	Data   []byte
}

// TextFrame wraps data in a text frame.
func TextFrame(data []byte) Frame {
	return Frame{Data: data}
}

// BinaryFrame wraps data in a binary frame.
func BinaryFrame(data []byte) Frame {
	return Frame{Binary: true, Data: data}
}

// Client is a single established duplex connection.
//
// Frames returns the inbound stream. The channel is closed when the
// connection dies for any reason; afterwards Err reports the terminal cause,
// or nil when the closure was requested locally via Close.
type Client interface {
	// Send writes one frame to the peer. Safe for concurrent use.
	Send(frame Frame) error

	// Frames returns the inbound frame stream. The same channel is returned
	// on every call; it is closed when the connection terminates.
	Frames() <-chan Frame

	// Err reports why the connection terminated. It returns nil before the
	// frame channel is closed and after a locally requested Close.
	Err() error

	// Close tears the connection down. Idempotent.
	Close() error
}

// DialFunc establishes a Client. Sessions accept one for injection so tests
// and alternative transports can stand in for the WebSocket dialer.
type DialFunc func(ctx context.Context, endpoint string, header http.Header) (Client, error)
