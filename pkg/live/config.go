package live

import (
	"fmt"
	"time"
)

// GenerationConfig holds model sampling parameters. Nil fields mean "use the
// provider default" and are omitted from the session update entirely, which is
// not the same as sending a zero.
type GenerationConfig struct {
	Temperature *float64 // [0, 2]
	TopP        *float64 // (0, 1]
	TopK        *int     // > 0
	MaxTokens   *int     // > 0
}

// Float64 returns a pointer to v, for populating GenerationConfig fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for populating GenerationConfig fields.
func Int(v int) *int { return &v }

// Validate checks every set field against its legal range.
func (g GenerationConfig) Validate() error {
	if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
		return NewConfigError(fmt.Sprintf("temperature %v out of range [0, 2]", *g.Temperature))
	}
	if g.TopP != nil && (*g.TopP <= 0 || *g.TopP > 1) {
		return NewConfigError(fmt.Sprintf("top_p %v out of range (0, 1]", *g.TopP))
	}
	if g.TopK != nil && *g.TopK <= 0 {
		return NewConfigError(fmt.Sprintf("top_k %d must be positive", *g.TopK))
	}
	if g.MaxTokens != nil && *g.MaxTokens <= 0 {
		return NewConfigError(fmt.Sprintf("max_tokens %d must be positive", *g.MaxTokens))
	}
	return nil
}

// ReconnectConfig controls the exponential backoff schedule used when a
// connection drops. MaxAttempts of zero disables reconnection outright.
type ReconnectConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns the default backoff schedule:
// five attempts at 1s, 2s, 4s, 8s, 16s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks the schedule parameters.
func (r ReconnectConfig) Validate() error {
	if r.MaxAttempts < 0 {
		return NewConfigError(fmt.Sprintf("reconnect max_attempts %d must not be negative", r.MaxAttempts))
	}
	if r.MaxAttempts == 0 {
		// Reconnection disabled; the schedule fields are never consulted.
		return nil
	}
	if r.InitialDelay <= 0 {
		return NewConfigError(fmt.Sprintf("reconnect initial_delay %v must be positive", r.InitialDelay))
	}
	if r.MaxDelay < r.InitialDelay {
		return NewConfigError(fmt.Sprintf("reconnect max_delay %v must be >= initial_delay %v", r.MaxDelay, r.InitialDelay))
	}
	if r.BackoffMultiplier < 1 {
		return NewConfigError(fmt.Sprintf("reconnect backoff_multiplier %v must be >= 1", r.BackoffMultiplier))
	}
	return nil
}

// SessionConfig describes one conversation session. The zero value of the
// optional string fields means "provider default". A session copies its config
// at Connect; the With* derivations return modified copies and never touch a
// running session.
type SessionConfig struct {
	Voice               string
	Instructions        string
	InputTranscription  bool
	OutputTranscription bool
	AutoReconnect       bool
	Generation          GenerationConfig
	Reconnect           ReconnectConfig
}

// DefaultSessionConfig returns the default session configuration:
// both transcription directions on, auto-reconnect with the default schedule.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InputTranscription:  true,
		OutputTranscription: true,
		AutoReconnect:       true,
		Reconnect:           DefaultReconnectConfig(),
	}
}

// WithVoice returns a copy with the given voice.
func (c SessionConfig) WithVoice(voice string) SessionConfig {
	c.Voice = voice
	return c
}

// WithInstructions returns a copy with the given system instructions.
func (c SessionConfig) WithInstructions(instructions string) SessionConfig {
	c.Instructions = instructions
	return c
}

// WithGeneration returns a copy with the given sampling parameters.
func (c SessionConfig) WithGeneration(g GenerationConfig) SessionConfig {
	c.Generation = g
	return c
}

// WithReconnect returns a copy with the given reconnect schedule and
// auto-reconnect enabled.
func (c SessionConfig) WithReconnect(r ReconnectConfig) SessionConfig {
	c.AutoReconnect = true
	c.Reconnect = r
	return c
}

// WithTranscription returns a copy with the transcription switches set.
func (c SessionConfig) WithTranscription(input, output bool) SessionConfig {
	c.InputTranscription = input
	c.OutputTranscription = output
	return c
}

// Validate checks the whole configuration tree.
func (c SessionConfig) Validate() error {
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if err := c.Reconnect.Validate(); err != nil {
		return err
	}
	return nil
}
