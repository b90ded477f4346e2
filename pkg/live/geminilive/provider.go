// Package geminilive connects live sessions to the Gemini Live API over its
// BidiGenerateContent WebSocket protocol. Audio goes up as 16kHz PCM16 and
// comes back at 24kHz.
package geminilive

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
)

const (
	// DefaultModel is the live model used when none is configured.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultBaseURL is the production Live API endpoint.
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// inputSampleRate and outputSampleRate are fixed by the Live API.
	inputSampleRate  = 16000
	outputSampleRate = 24000
)

// Provider describes a Gemini Live API account and model.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

var _ live.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the live model to converse with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API endpoint, e.g. for a proxy or a test server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// New creates a Provider for the given API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name identifies the provider in logs, traces and relay URLs.
func (p *Provider) Name() string { return "gemini" }

// BuildEndpoint returns the WebSocket URL. The API authenticates through a
// key query parameter rather than a header.
func (p *Provider) BuildEndpoint() (string, error) {
	if p.apiKey == "" {
		return "", errors.New("api key required")
	}
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("key", p.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BuildHeaders returns no headers; authentication lives in the endpoint URL.
func (p *Provider) BuildHeaders() (http.Header, error) {
	return http.Header{}, nil
}

// NewFormatter returns the protocol codec bound to this provider's model.
func (p *Provider) NewFormatter() live.Formatter { return &Formatter{model: p.model} }

// InputFormat returns the PCM layout the API accepts.
func (p *Provider) InputFormat() audio.Format { return audio.PCM16Mono(inputSampleRate) }

// OutputFormat returns the PCM layout the API produces.
func (p *Provider) OutputFormat() audio.Format { return audio.PCM16Mono(outputSampleRate) }
