package geminilive

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/transport"
)

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestBuildSessionUpdate(t *testing.T) {
	f := &Formatter{model: "gemini-2.0-flash-exp"}

	cfg := live.DefaultSessionConfig().
		WithVoice("Puck").
		WithInstructions("Answer briefly.").
		WithGeneration(live.GenerationConfig{
			Temperature: live.Float64(0.7),
			TopP:        live.Float64(0.9),
			TopK:        live.Int(40),
			MaxTokens:   live.Int(1024),
		})

	tools := []live.ToolSchema{{
		Name:        "get_weather",
		Description: "Look up the current weather",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}}

	frame, err := f.BuildSessionUpdate(cfg, tools)
	require.NoError(t, err)

	setup := decodeJSON(t, frame.Data)["setup"].(map[string]any)
	assert.Equal(t, "models/gemini-2.0-flash-exp", setup["model"])

	generation := setup["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, generation["responseModalities"])
	assert.Equal(t, 0.7, generation["temperature"])
	assert.Equal(t, 0.9, generation["topP"])
	assert.Equal(t, float64(40), generation["topK"])
	assert.Equal(t, float64(1024), generation["maxOutputTokens"])

	voice := generation["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Puck", voice["voiceName"])

	instruction := setup["systemInstruction"].(map[string]any)
	parts := instruction["parts"].([]any)
	require.Len(t, parts, 1)
	assert.Equal(t, "Answer briefly.", parts[0].(map[string]any)["text"])

	assert.Contains(t, setup, "inputAudioTranscription")
	assert.Contains(t, setup, "outputAudioTranscription")

	wireTools := setup["tools"].([]any)
	require.Len(t, wireTools, 1)
	declarations := wireTools[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, declarations, 1)
	assert.Equal(t, "get_weather", declarations[0].(map[string]any)["name"])

	t.Run("deterministic for replay", func(t *testing.T) {
		again, err := f.BuildSessionUpdate(cfg, tools)
		require.NoError(t, err)
		assert.Equal(t, frame.Data, again.Data)
	})

	t.Run("transcription disabled", func(t *testing.T) {
		frame, err := f.BuildSessionUpdate(cfg.WithTranscription(false, false), nil)
		require.NoError(t, err)
		setup := decodeJSON(t, frame.Data)["setup"].(map[string]any)
		assert.NotContains(t, setup, "inputAudioTranscription")
		assert.NotContains(t, setup, "outputAudioTranscription")
	})

	t.Run("prefixed model kept", func(t *testing.T) {
		prefixed := &Formatter{model: "models/gemini-2.0-flash-exp"}
		frame, err := prefixed.BuildSessionUpdate(live.DefaultSessionConfig(), nil)
		require.NoError(t, err)
		setup := decodeJSON(t, frame.Data)["setup"].(map[string]any)
		assert.Equal(t, "models/gemini-2.0-flash-exp", setup["model"])
	})
}

func TestEncodeOutbound(t *testing.T) {
	f := &Formatter{model: "gemini-2.0-flash-exp"}

	t.Run("audio", func(t *testing.T) {
		frame, err := f.EncodeOutbound(live.Outbound{Type: live.OutboundAudio, Audio: []byte{1, 2, 3}})
		require.NoError(t, err)
		input := decodeJSON(t, frame.Data)["realtimeInput"].(map[string]any)
		chunks := input["mediaChunks"].([]any)
		require.Len(t, chunks, 1)
		chunk := chunks[0].(map[string]any)
		assert.Equal(t, "audio/pcm;rate=16000", chunk["mimeType"])
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), chunk["data"])
	})

	t.Run("text", func(t *testing.T) {
		frame, err := f.EncodeOutbound(live.Outbound{Type: live.OutboundText, Text: "hello"})
		require.NoError(t, err)
		cc := decodeJSON(t, frame.Data)["clientContent"].(map[string]any)
		assert.Equal(t, true, cc["turnComplete"])
		turn := cc["turns"].([]any)[0].(map[string]any)
		assert.Equal(t, "user", turn["role"])
		assert.Equal(t, "hello", turn["parts"].([]any)[0].(map[string]any)["text"])
	})

	t.Run("commit flushes the audio stream", func(t *testing.T) {
		frame, err := f.EncodeOutbound(live.Outbound{Type: live.OutboundCommit})
		require.NoError(t, err)
		input := decodeJSON(t, frame.Data)["realtimeInput"].(map[string]any)
		assert.Equal(t, true, input["audioStreamEnd"])
	})

	t.Run("wire-less types encode to zero frames", func(t *testing.T) {
		for _, msgType := range []live.OutboundType{
			live.OutboundInterrupt,
			live.OutboundClear,
			live.OutboundCreateResponse,
		} {
			frame, err := f.EncodeOutbound(live.Outbound{Type: msgType})
			require.NoError(t, err)
			assert.Nil(t, frame.Data)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := f.EncodeOutbound(live.Outbound{Type: "bogus"})
		assert.Error(t, err)
	})
}

func TestDecodeInbound(t *testing.T) {
	f := &Formatter{model: "gemini-2.0-flash-exp"}

	decode := func(t *testing.T, raw string) live.Event {
		t.Helper()
		ev, err := f.DecodeInbound(transport.TextFrame([]byte(raw)))
		require.NoError(t, err)
		return ev
	}

	t.Run("setup complete", func(t *testing.T) {
		ev := decode(t, `{"setupComplete":{}}`)
		assert.Equal(t, "gemini-2.0-flash-exp", ev.(*live.SessionCreated).Model)
	})

	t.Run("audio parts concatenated", func(t *testing.T) {
		raw := `{"serverContent":{"modelTurn":{"parts":[
			{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQI="}},
			{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AwQ="}}
		]}}}`
		delta := decode(t, raw).(*live.AudioDelta)
		assert.Equal(t, []byte{1, 2, 3, 4}, delta.Audio)
		assert.Equal(t, audio.PCM16Mono(24000), delta.Format)
	})

	t.Run("binary frames decode the same", func(t *testing.T) {
		raw := []byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"hi"}]}}}`)
		ev, err := f.DecodeInbound(transport.BinaryFrame(raw))
		require.NoError(t, err)
		assert.Equal(t, "hi", ev.(*live.TextDelta).Text)
	})

	t.Run("audio wins over text", func(t *testing.T) {
		raw := `{"serverContent":{"modelTurn":{"parts":[
			{"text":"spoken"},
			{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQI="}}
		]}}}`
		assert.IsType(t, &live.AudioDelta{}, decode(t, raw))
	})

	t.Run("interrupted", func(t *testing.T) {
		ev := decode(t, `{"serverContent":{"interrupted":true}}`)
		assert.True(t, ev.(*live.TurnComplete).Interrupted)
	})

	t.Run("turn complete", func(t *testing.T) {
		ev := decode(t, `{"serverContent":{"turnComplete":true}}`)
		assert.False(t, ev.(*live.TurnComplete).Interrupted)
	})

	t.Run("input transcription", func(t *testing.T) {
		ev := decode(t, `{"serverContent":{"inputTranscription":{"text":"hello there"}}}`)
		assert.Equal(t, "hello there", ev.(*live.InputTranscription).Text)
	})

	t.Run("output transcription", func(t *testing.T) {
		ev := decode(t, `{"serverContent":{"outputTranscription":{"text":"hi"}}}`)
		assert.Equal(t, "hi", ev.(*live.OutputTranscription).Text)
	})

	t.Run("bookkeeping dropped", func(t *testing.T) {
		for _, raw := range []string{
			`{"serverContent":{"generationComplete":true}}`,
			`{"usageMetadata":{"totalTokenCount":42}}`,
			`{"goAway":{"timeLeft":"10s"}}`,
			`{"toolCall":{}}`,
		} {
			ev, err := f.DecodeInbound(transport.TextFrame([]byte(raw)))
			require.NoError(t, err)
			assert.Nil(t, ev)
		}
	})

	t.Run("unrecognized key is a warning", func(t *testing.T) {
		ev := decode(t, `{"hologram":{}}`)
		errEvent := ev.(*live.ErrorEvent)
		assert.True(t, live.IsKind(errEvent.Err, live.KindProtocolError))
		assert.Contains(t, errEvent.Message(), "hologram")
	})

	t.Run("malformed frame", func(t *testing.T) {
		_, err := f.DecodeInbound(transport.TextFrame([]byte("not json")))
		assert.True(t, live.IsKind(err, live.KindProtocolError))
	})
}
