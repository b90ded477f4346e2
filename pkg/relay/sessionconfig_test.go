package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-ai/converse/pkg/live"
)

func TestDecodeSessionConfig(t *testing.T) {
	in := `{
		"voice": "coral",
		"instructions": "answer briefly",
		"input_transcription": false,
		"generation": {"temperature": 0.7, "top_k": 40},
		"reconnect": {
			"max_attempts": 3,
			"initial_delay_ms": 250,
			"max_delay_ms": 4000,
			"backoff_multiplier": 2.0
		}
	}`

	cfg, err := DecodeSessionConfig(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "coral", cfg.Voice)
	assert.Equal(t, "answer briefly", cfg.Instructions)
	assert.False(t, cfg.InputTranscription)
	// Absent fields keep their defaults.
	assert.True(t, cfg.OutputTranscription)
	assert.True(t, cfg.AutoReconnect)

	require.NotNil(t, cfg.Generation.Temperature)
	assert.Equal(t, 0.7, *cfg.Generation.Temperature)
	require.NotNil(t, cfg.Generation.TopK)
	assert.Equal(t, 40, *cfg.Generation.TopK)
	assert.Nil(t, cfg.Generation.TopP)

	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.Reconnect.MaxDelay)
}

func TestDecodeSessionConfigEmpty(t *testing.T) {
	cfg, err := DecodeSessionConfig(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, live.DefaultSessionConfig(), cfg)
}

func TestDecodeSessionConfigRejects(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := DecodeSessionConfig(strings.NewReader(`{"voices": "coral"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "voices")
	})

	t.Run("out of range value", func(t *testing.T) {
		_, err := DecodeSessionConfig(strings.NewReader(`{"generation": {"temperature": 3}}`))
		assert.True(t, live.IsKind(err, live.KindConfigError))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeSessionConfig(strings.NewReader(`{"voice":`))
		require.Error(t, err)
	})
}
