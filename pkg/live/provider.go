package live

import (
	"net/http"

	"github.com/converse-ai/converse/pkg/audio"
)

// Provider describes one remote realtime endpoint: where to connect, how to
// authenticate, which wire protocol to speak, and which PCM formats it
// expects. Connect drives every provider through the same orchestration; a
// new provider is a new implementation of this interface plus a Formatter.
type Provider interface {
	// Name identifies the provider in logs, metrics, and the relay registry.
	Name() string

	// BuildEndpoint returns the WebSocket URL for the configured model.
	BuildEndpoint() (string, error)

	// BuildHeaders returns the HTTP headers for the connection handshake,
	// including authentication.
	BuildHeaders() (http.Header, error)

	// NewFormatter returns the wire formatter for this provider's protocol.
	NewFormatter() Formatter

	// InputFormat is the PCM format the provider expects for caller audio.
	InputFormat() audio.Format

	// OutputFormat is the PCM format of the provider's audio deltas.
	OutputFormat() audio.Format
}
