package openairt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/transport"
)

// Formatter translates between engine messages and Realtime API JSON frames.
// It carries no state; one instance may serve successive connections.
type Formatter struct{}

var _ live.Formatter = (*Formatter)(nil)

// BuildSessionUpdate renders the config as a session.update frame. The output
// depends only on the inputs, so the frame can be replayed verbatim on a
// reconnected session.
func (f *Formatter) BuildSessionUpdate(cfg live.SessionConfig, tools []live.ToolSchema) (transport.Frame, error) {
	session := sessionPayload{
		Modalities:        []string{"text", "audio"},
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  audioFormatPCM16,
		OutputAudioFormat: audioFormatPCM16,
		// The Realtime API session has no top_p or top_k fields; those
		// knobs stay at provider defaults.
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxTokens,
	}
	if cfg.InputTranscription {
		session.InputAudioTranscription = &transcriptionModel{Model: openai.Whisper1}
	}
	for _, tool := range tools {
		session.Tools = append(session.Tools, toolPayload{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}

	data, err := json.Marshal(sessionUpdateEvent{Type: typeSessionUpdate, Session: session})
	if err != nil {
		return transport.Frame{}, fmt.Errorf("marshal session.update: %w", err)
	}
	return transport.TextFrame(data), nil
}

// EncodeOutbound renders one engine message as one Realtime API client event.
func (f *Formatter) EncodeOutbound(msg live.Outbound) (transport.Frame, error) {
	var payload any
	switch msg.Type {
	case live.OutboundAudio:
		payload = audioAppendEvent{
			Type:  typeInputAudioBufferAppend,
			Audio: base64.StdEncoding.EncodeToString(msg.Audio),
		}
	case live.OutboundText:
		payload = itemCreateEvent{
			Type: typeConversationItemCreate,
			Item: conversationItem{
				Type:    "message",
				Role:    "user",
				Content: []itemContent{{Type: "input_text", Text: msg.Text}},
			},
		}
	case live.OutboundInterrupt:
		payload = bareEvent{Type: typeResponseCancel}
	case live.OutboundCommit:
		payload = bareEvent{Type: typeInputAudioBufferCommit}
	case live.OutboundClear:
		payload = bareEvent{Type: typeInputAudioBufferClear}
	case live.OutboundCreateResponse:
		payload = bareEvent{Type: typeResponseCreate}
	default:
		return transport.Frame{}, fmt.Errorf("unsupported outbound type %q", msg.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return transport.Frame{}, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	return transport.TextFrame(data), nil
}

// DecodeInbound classifies one server frame and maps it to at most one engine
// event. Bookkeeping frames yield (nil, nil); unrecognized event types yield a
// non-fatal error event so a provider rollout never kills the session.
func (f *Formatter) DecodeInbound(frame transport.Frame) (live.Event, error) {
	if frame.Binary {
		return nil, live.NewProtocolError("unexpected binary frame", nil)
	}
	var base serverEvent
	if err := json.Unmarshal(frame.Data, &base); err != nil {
		return nil, live.NewProtocolError("malformed server event", err)
	}

	switch base.Type {
	case typeError:
		var ev errorEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed error event", err)
		}
		return warning("provider error: %s", ev.Error.Message), nil

	case typeSessionCreated:
		var ev sessionCreatedEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed session.created event", err)
		}
		return &live.SessionCreated{ProviderSessionID: ev.Session.ID, Model: ev.Session.Model}, nil

	case typeSessionUpdated:
		return &live.SessionUpdated{}, nil

	case typeResponseTextDelta:
		var ev deltaEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed text delta", err)
		}
		return &live.TextDelta{Text: ev.Delta}, nil

	case typeResponseAudioDelta:
		var ev deltaEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed audio delta", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return nil, live.NewProtocolError("audio delta: invalid base64 data", err)
		}
		return &live.AudioDelta{Audio: pcm, Format: audio.PCM16Mono(sampleRate)}, nil

	case typeResponseAudioTranscriptDelta:
		var ev deltaEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed transcript delta", err)
		}
		return &live.OutputTranscription{Text: ev.Delta}, nil

	case typeInputTranscriptionCompleted:
		var ev transcriptionCompletedEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed transcription event", err)
		}
		return &live.InputTranscription{Text: ev.Transcript}, nil

	case typeInputTranscriptionDelta:
		var ev deltaEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed transcription delta", err)
		}
		return &live.InputTranscription{Text: ev.Delta}, nil

	case typeInputTranscriptionFailed:
		return warning("input transcription failed"), nil

	case typeResponseDone:
		var ev responseDoneEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, live.NewProtocolError("malformed response.done event", err)
		}
		return &live.TurnComplete{Interrupted: ev.Response.Status == responseStatusCancelled}, nil
	}

	if _, ok := bookkeepingTypes[base.Type]; ok {
		return nil, nil
	}
	return warning("unrecognized server event type %q", base.Type), nil
}

func warning(format string, args ...any) *live.ErrorEvent {
	return &live.ErrorEvent{Err: live.NewProtocolError(fmt.Sprintf(format, args...), nil)}
}
