package geminilive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-ai/converse/pkg/audio"
)

func TestProviderDefaults(t *testing.T) {
	p := New("test-key")

	assert.Equal(t, "gemini", p.Name())
	assert.Equal(t, audio.PCM16Mono(16000), p.InputFormat())
	assert.Equal(t, audio.PCM16Mono(24000), p.OutputFormat())

	endpoint, err := p.BuildEndpoint()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"?key=test-key", endpoint)

	header, err := p.BuildHeaders()
	require.NoError(t, err)
	assert.Empty(t, header)
}

func TestProviderOptions(t *testing.T) {
	p := New("test-key",
		WithModel("gemini-2.0-flash-exp"),
		WithBaseURL("ws://127.0.0.1:9090/live"),
	)

	endpoint, err := p.BuildEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9090/live?key=test-key", endpoint)

	formatter := p.NewFormatter().(*Formatter)
	assert.Equal(t, "gemini-2.0-flash-exp", formatter.model)
}

func TestProviderMissingKey(t *testing.T) {
	p := New("")

	_, err := p.BuildEndpoint()
	assert.Error(t, err)
}
