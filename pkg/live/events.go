package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/converse-ai/converse/pkg/audio"
)

// EventKind identifies an event variant. The values double as the wire-level
// type tags sent to callers.
type EventKind string

const (
	EventSessionCreated      EventKind = "SESSION_CREATED"
	EventSessionUpdated      EventKind = "SESSION_UPDATED"
	EventTextDelta           EventKind = "TEXT_DELTA"
	EventAudioDelta          EventKind = "AUDIO_DELTA"
	EventInputTranscription  EventKind = "INPUT_TRANSCRIPTION"
	EventOutputTranscription EventKind = "OUTPUT_TRANSCRIPTION"
	EventTurnComplete        EventKind = "TURN_COMPLETE"
	EventError               EventKind = "ERROR"
)

// Event is one entry in a session's ordered event stream. Seq increases
// monotonically within a session; Last marks the terminal event after which
// the stream closes.
//
// The variant set is closed: only types in this package satisfy Event.
type Event interface {
	Kind() EventKind
	Seq() uint64
	Last() bool

	// stamp is unexported so the variant set stays sealed; the session
	// assigns sequence numbers when it emits.
	stamp(seq uint64, last bool)
}

// EventMeta carries the per-event bookkeeping shared by every variant.
// Embed it by value; the session stamps through a pointer receiver.
type EventMeta struct {
	seq  uint64
	last bool
}

func (m *EventMeta) Seq() uint64 { return m.seq }
func (m *EventMeta) Last() bool { return m.last }

func (m *EventMeta) stamp(seq uint64, last bool) {
	m.seq = seq
	m.last = last
}

// SessionCreated acknowledges a newly established provider session.
type SessionCreated struct {
	EventMeta
	ProviderSessionID string
	Model             string
}

func (*SessionCreated) Kind() EventKind { return EventSessionCreated }

// SessionUpdated acknowledges an applied session configuration. Resumed is
// set when the update belongs to a transparently re-established connection
// rather than a caller-initiated change.
type SessionUpdated struct {
	EventMeta
	Resumed bool
}

func (*SessionUpdated) Kind() EventKind { return EventSessionUpdated }

// TextDelta is an incremental chunk of the model's text output.
type TextDelta struct {
	EventMeta
	Text string
}

func (*TextDelta) Kind() EventKind { return EventTextDelta }

// AudioDelta is an incremental chunk of the model's audio output, raw PCM in
// the provider's output format.
type AudioDelta struct {
	EventMeta
	Audio  []byte
	Format audio.Format
}

func (*AudioDelta) Kind() EventKind { return EventAudioDelta }

// InputTranscription carries the provider's transcription of caller audio.
type InputTranscription struct {
	EventMeta
	Text string
}

func (*InputTranscription) Kind() EventKind { return EventInputTranscription }

// OutputTranscription carries the provider's transcription of model audio.
type OutputTranscription struct {
	EventMeta
	Text string
}

func (*OutputTranscription) Kind() EventKind { return EventOutputTranscription }

// TurnComplete marks the end of a model response. Interrupted is set when the
// turn ended because the caller barged in rather than the model finishing.
type TurnComplete struct {
	EventMeta
	Interrupted bool
}

func (*TurnComplete) Kind() EventKind { return EventTurnComplete }

// ErrorEvent surfaces a session error on the event stream. Non-terminal
// error events (Last() == false) are warnings; the session is still open.
type ErrorEvent struct {
	EventMeta
	Err *Error
}

func (*ErrorEvent) Kind() EventKind { return EventError }

func (e *ErrorEvent) Message() string {
	if e.Err == nil {
		return ""
	}
	if e.Err.Err != nil {
		return fmt.Sprintf("%s: %v", e.Err.Message, e.Err.Err)
	}
	return e.Err.Message
}

// wireEvent is the caller-facing JSON shape shared by all event kinds.
type wireEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// MarshalEvent renders an event as caller-facing JSON. Audio payloads are
// base64 encoded.
func MarshalEvent(ev Event) ([]byte, error) {
	w := wireEvent{Type: string(ev.Kind())}

	switch e := ev.(type) {
	case *SessionCreated, *SessionUpdated, *TurnComplete:
		// Type tag only.
	case *TextDelta:
		w.Text = e.Text
	case *AudioDelta:
		w.Audio = base64.StdEncoding.EncodeToString(e.Audio)
	case *InputTranscription:
		w.Text = e.Text
	case *OutputTranscription:
		w.Text = e.Text
	case *ErrorEvent:
		w.Message = e.Message()
		if e.Err != nil {
			w.Code = string(e.Err.Kind)
		}
	default:
		return nil, fmt.Errorf("live: unknown event type %T", ev)
	}

	return json.Marshal(w)
}
