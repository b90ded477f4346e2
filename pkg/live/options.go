package live

import (
	"time"

	"github.com/converse-ai/converse/pkg/transport"
	"go.uber.org/zap"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultEventBuffer    = 64
	DefaultSendBuffer     = 64
)

type options struct {
	dial           transport.DialFunc
	logger         *zap.Logger
	connectTimeout time.Duration
	eventBuffer    int
	sendBuffer     int
}

func defaultOptions() options {
	return options{
		dial:           transport.DialWebSocket,
		logger:         zap.NewNop(),
		connectTimeout: DefaultConnectTimeout,
		eventBuffer:    DefaultEventBuffer,
		sendBuffer:     DefaultSendBuffer,
	}
}

// Option configures a session at Connect time.
type Option func(*options)

// WithDialer replaces the transport dialer. Tests use this to substitute
// in-memory transports; production code can use it to tunnel or add TLS
// configuration.
func WithDialer(dial transport.DialFunc) Option {
	return func(o *options) {
		if dial != nil {
			o.dial = dial
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConnectTimeout bounds how long Connect (and each reconnect attempt)
// waits for the provider's session acknowledgement.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithEventBuffer sets the event channel capacity. When the buffer fills,
// emission blocks and backpressure reaches the transport read.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithSendBuffer sets the outbound queue capacity.
func WithSendBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}
