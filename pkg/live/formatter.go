package live

import (
	"encoding/json"

	"github.com/converse-ai/converse/pkg/transport"
)

// OutboundType identifies an outbound message category.
type OutboundType string

const (
	OutboundAudio          OutboundType = "audio"
	OutboundText           OutboundType = "text"
	OutboundInterrupt      OutboundType = "interrupt"
	OutboundCommit         OutboundType = "commit"
	OutboundClear          OutboundType = "clear"
	OutboundCreateResponse OutboundType = "createResponse"
)

// Outbound is one caller message bound for the provider. Audio carries PCM
// already resampled to the provider's input format.
type Outbound struct {
	Type  OutboundType
	Audio []byte
	Text  string
}

// ToolSchema declares one tool the model may call. Parameters is a JSON
// Schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Formatter translates between the engine's neutral model and one provider's
// wire protocol. Implementations carry no mutable state and are safe for
// concurrent use; every piece of provider variance lives behind this
// interface, so the session and reconnect logic carry no provider-specific
// branches.
type Formatter interface {
	// BuildSessionUpdate renders the session configuration as the provider's
	// setup/update frame. It is idempotent: identical inputs produce
	// byte-identical frames, so the frame can be replayed verbatim when a
	// connection is re-established.
	BuildSessionUpdate(cfg SessionConfig, tools []ToolSchema) (transport.Frame, error)

	// EncodeOutbound renders one caller message as a provider frame. A zero
	// frame with a nil error means the protocol needs no message for this
	// type; the session transmits nothing.
	EncodeOutbound(msg Outbound) (transport.Frame, error)

	// DecodeInbound translates one provider frame. It returns at most one
	// event: (nil, nil) for protocol bookkeeping frames that carry nothing
	// caller-visible, a warning ErrorEvent for frame types it does not
	// recognize, and an error only for frames too malformed to classify.
	// Decode failures never terminate the session.
	DecodeInbound(frame transport.Frame) (Event, error)
}
