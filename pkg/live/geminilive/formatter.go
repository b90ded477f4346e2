package geminilive

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/transport"
)

// Formatter translates between engine messages and BidiGenerateContent JSON
// envelopes. The model name rides in the setup frame rather than the URL, so
// the formatter carries it; it is immutable after construction.
type Formatter struct {
	model string
}

var _ live.Formatter = (*Formatter)(nil)

// BuildSessionUpdate renders the config as the setup envelope that opens
// every connection. The output depends only on the inputs, so the frame can
// be replayed verbatim on a reconnected session.
func (f *Formatter) BuildSessionUpdate(cfg live.SessionConfig, tools []live.ToolSchema) (transport.Frame, error) {
	model := f.model
	if !strings.HasPrefix(model, modelPrefix) {
		model = modelPrefix + model
	}

	generation := &generationConfig{
		// Native-audio models speak one response modality; text arrives
		// through the output transcription instead.
		ResponseModalities: []string{"AUDIO"},
		Temperature:        cfg.Generation.Temperature,
		TopP:               cfg.Generation.TopP,
		TopK:               cfg.Generation.TopK,
		MaxOutputTokens:    cfg.Generation.MaxTokens,
	}
	if cfg.Voice != "" {
		generation.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	setup := &setupPayload{
		Model:            model,
		GenerationConfig: generation,
	}
	if cfg.Instructions != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	if len(tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(tools))
		for _, t := range tools {
			declarations = append(declarations, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		setup.Tools = []tool{{FunctionDeclarations: declarations}}
	}

	data, err := json.Marshal(clientMessage{Setup: setup})
	if err != nil {
		return transport.Frame{}, fmt.Errorf("marshal setup: %w", err)
	}
	return transport.TextFrame(data), nil
}

// EncodeOutbound renders one engine message as one client envelope. The
// protocol runs server-side voice activity detection, so interrupt, clear and
// createResponse have no wire message and encode to a zero frame.
func (f *Formatter) EncodeOutbound(msg live.Outbound) (transport.Frame, error) {
	var envelope clientMessage
	switch msg.Type {
	case live.OutboundAudio:
		envelope.RealtimeInput = &realtimeInput{
			MediaChunks: []blob{{
				MIMEType: inputMIMEType,
				Data:     base64.StdEncoding.EncodeToString(msg.Audio),
			}},
		}
	case live.OutboundText:
		envelope.ClientContent = &clientContent{
			Turns:        []content{{Role: "user", Parts: []part{{Text: msg.Text}}}},
			TurnComplete: true,
		}
	case live.OutboundCommit:
		envelope.RealtimeInput = &realtimeInput{AudioStreamEnd: true}
	case live.OutboundInterrupt, live.OutboundClear, live.OutboundCreateResponse:
		return transport.Frame{}, nil
	default:
		return transport.Frame{}, fmt.Errorf("unsupported outbound type %q", msg.Type)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return transport.Frame{}, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	return transport.TextFrame(data), nil
}

// DecodeInbound classifies one server envelope and maps it to at most one
// engine event. The API wraps JSON in binary frames, so both frame types
// decode identically. Unrecognized envelopes yield a non-fatal error event.
func (f *Formatter) DecodeInbound(frame transport.Frame) (live.Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame.Data, &fields); err != nil {
		return nil, live.NewProtocolError("malformed server message", err)
	}

	if _, ok := fields[keySetupComplete]; ok {
		return &live.SessionCreated{Model: f.model}, nil
	}

	if raw, ok := fields[keyServerContent]; ok {
		var sc serverContent
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, live.NewProtocolError("malformed server content", err)
		}
		return f.decodeServerContent(sc)
	}

	for key := range bookkeepingKeys {
		if _, ok := fields[key]; ok {
			return nil, nil
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	warning := live.NewProtocolError(fmt.Sprintf("unrecognized server message key %q", keys[0]), nil)
	return &live.ErrorEvent{Err: warning}, nil
}

// decodeServerContent picks the one caller-visible fact out of a server
// content payload. The API streams these facts in separate envelopes; the
// ordering below only breaks ties.
func (f *Formatter) decodeServerContent(sc serverContent) (live.Event, error) {
	if sc.Interrupted {
		return &live.TurnComplete{Interrupted: true}, nil
	}
	if sc.ModelTurn != nil {
		return f.decodeModelTurn(sc.ModelTurn)
	}
	if sc.InputTranscription != nil {
		return &live.InputTranscription{Text: sc.InputTranscription.Text}, nil
	}
	if sc.OutputTranscription != nil {
		return &live.OutputTranscription{Text: sc.OutputTranscription.Text}, nil
	}
	if sc.TurnComplete {
		return &live.TurnComplete{}, nil
	}
	// generationComplete and empty payloads carry nothing for the caller.
	return nil, nil
}

// decodeModelTurn flattens a turn chunk. Audio parts win over text parts
// since native-audio models duplicate text through transcriptions.
func (f *Formatter) decodeModelTurn(turn *content) (live.Event, error) {
	var pcm []byte
	var text strings.Builder
	for _, p := range turn.Parts {
		if p.InlineData != nil {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, live.NewProtocolError("model turn: invalid base64 audio", err)
			}
			pcm = append(pcm, data...)
			continue
		}
		text.WriteString(p.Text)
	}

	if len(pcm) > 0 {
		return &live.AudioDelta{Audio: pcm, Format: audio.PCM16Mono(outputSampleRate)}, nil
	}
	if text.Len() > 0 {
		return &live.TextDelta{Text: text.String()}, nil
	}
	return nil, nil
}
