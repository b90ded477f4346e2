package openairt

import "encoding/json"

// Client event types sent to the Realtime API.
const (
	typeSessionUpdate          = "session.update"
	typeInputAudioBufferAppend = "input_audio_buffer.append"
	typeInputAudioBufferCommit = "input_audio_buffer.commit"
	typeInputAudioBufferClear  = "input_audio_buffer.clear"
	typeConversationItemCreate = "conversation.item.create"
	typeResponseCreate         = "response.create"
	typeResponseCancel         = "response.cancel"
)

// Server event types the formatter maps to engine events.
const (
	typeError                        = "error"
	typeSessionCreated               = "session.created"
	typeSessionUpdated               = "session.updated"
	typeResponseTextDelta            = "response.text.delta"
	typeResponseAudioDelta           = "response.audio.delta"
	typeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	typeInputTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	typeInputTranscriptionDelta      = "conversation.item.input_audio_transcription.delta"
	typeInputTranscriptionFailed     = "conversation.item.input_audio_transcription.failed"
	typeResponseDone                 = "response.done"
)

const (
	// audioFormatPCM16 is the only encoding the engine negotiates.
	audioFormatPCM16 = "pcm16"

	// responseStatusCancelled marks a response.done caused by response.cancel.
	responseStatusCancelled = "cancelled"
)

// bookkeepingTypes are server events that carry nothing the session surfaces:
// acknowledgements, item lifecycle notices and rate-limit updates.
var bookkeepingTypes = map[string]struct{}{
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.cleared":        {},
	"input_audio_buffer.speech_started": {},
	"input_audio_buffer.speech_stopped": {},
	"conversation.created":              {},
	"conversation.item.created":         {},
	"conversation.item.truncated":       {},
	"conversation.item.deleted":         {},
	"response.created":                  {},
	"response.output_item.added":        {},
	"response.output_item.done":         {},
	"response.content_part.added":       {},
	"response.content_part.done":        {},
	"response.text.done":                {},
	"response.audio.done":               {},
	"response.audio_transcript.done":    {},
	"rate_limits.updated":               {},
}

// sessionPayload mirrors the session object of a session.update event.
type sessionPayload struct {
	Modalities              []string            `json:"modalities,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *transcriptionModel `json:"input_audio_transcription,omitempty"`
	Tools                   []toolPayload       `json:"tools,omitempty"`
	Temperature             *float64            `json:"temperature,omitempty"`
	MaxOutputTokens         *int                `json:"max_output_tokens,omitempty"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type toolPayload struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Client events.

type sessionUpdateEvent struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type itemCreateEvent struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// bareEvent covers client events that are nothing but their type tag.
type bareEvent struct {
	Type string `json:"type"`
}

// Server events. A frame is classified by its type field first and then
// unmarshaled into the matching struct.

type serverEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type sessionCreatedEvent struct {
	Session sessionInfo `json:"session"`
}

type sessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

// deltaEvent covers every server event whose payload is a single delta
// string: text, base64 audio and transcript increments.
type deltaEvent struct {
	Delta string `json:"delta"`
}

type transcriptionCompletedEvent struct {
	Transcript string `json:"transcript"`
}

type responseDoneEvent struct {
	Response responseInfo `json:"response"`
}

type responseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
