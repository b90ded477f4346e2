package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/converse-ai/converse/pkg/live"
)

// wireSessionConfig is the JSON shape for operator-supplied session
// configuration. Pointer fields distinguish "absent, keep the default" from
// an explicit zero.
type wireSessionConfig struct {
	Voice               string                `json:"voice"`
	Instructions        string                `json:"instructions"`
	InputTranscription  *bool                 `json:"input_transcription"`
	OutputTranscription *bool                 `json:"output_transcription"`
	AutoReconnect       *bool                 `json:"auto_reconnect"`
	Generation          *wireGenerationConfig `json:"generation"`
	Reconnect           *wireReconnectConfig  `json:"reconnect"`
}

type wireGenerationConfig struct {
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	TopK        *int     `json:"top_k"`
	MaxTokens   *int     `json:"max_tokens"`
}

type wireReconnectConfig struct {
	MaxAttempts       int     `json:"max_attempts"`
	InitialDelayMS    int     `json:"initial_delay_ms"`
	MaxDelayMS        int     `json:"max_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// DecodeSessionConfig reads a JSON session configuration and applies it on
// top of the defaults. Unknown fields are rejected so a typo fails loudly
// instead of silently keeping the default, and the result is validated.
func DecodeSessionConfig(r io.Reader) (live.SessionConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var w wireSessionConfig
	if err := dec.Decode(&w); err != nil {
		return live.SessionConfig{}, fmt.Errorf("decoding session config: %w", err)
	}

	cfg := live.DefaultSessionConfig()
	cfg.Voice = w.Voice
	cfg.Instructions = w.Instructions
	if w.InputTranscription != nil {
		cfg.InputTranscription = *w.InputTranscription
	}
	if w.OutputTranscription != nil {
		cfg.OutputTranscription = *w.OutputTranscription
	}
	if w.AutoReconnect != nil {
		cfg.AutoReconnect = *w.AutoReconnect
	}
	if w.Generation != nil {
		cfg.Generation = live.GenerationConfig{
			Temperature: w.Generation.Temperature,
			TopP:        w.Generation.TopP,
			TopK:        w.Generation.TopK,
			MaxTokens:   w.Generation.MaxTokens,
		}
	}
	if w.Reconnect != nil {
		cfg.Reconnect = live.ReconnectConfig{
			MaxAttempts:       w.Reconnect.MaxAttempts,
			InitialDelay:      time.Duration(w.Reconnect.InitialDelayMS) * time.Millisecond,
			MaxDelay:          time.Duration(w.Reconnect.MaxDelayMS) * time.Millisecond,
			BackoffMultiplier: w.Reconnect.BackoffMultiplier,
		}
	}

	if err := cfg.Validate(); err != nil {
		return live.SessionConfig{}, err
	}
	return cfg, nil
}
