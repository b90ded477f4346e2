// Package openairt connects live sessions to the OpenAI Realtime API over
// its WebSocket protocol. Audio crosses the wire as base64 PCM16 at 24kHz in
// both directions.
package openairt

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
)

const (
	// DefaultModel is the realtime model used when none is configured.
	DefaultModel = "gpt-4o-realtime-preview"

	// DefaultBaseURL is the production Realtime API endpoint.
	DefaultBaseURL = "wss://api.openai.com/v1/realtime"

	// sampleRate is the PCM16 rate the Realtime API speaks in both directions.
	sampleRate = 24000
)

// Provider describes an OpenAI Realtime API account and model.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

var _ live.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the realtime model to converse with.
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
func (p *Provider) Name() string { return "openai" }

// BuildEndpoint returns the WebSocket URL carrying the model selection.
func (p *Provider) BuildEndpoint() (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BuildHeaders returns the authentication headers for the dial request.
func (p *Provider) BuildHeaders() (http.Header, error) {
	if p.apiKey == "" {
		return nil, errors.New("api key required")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	return header, nil
}

// NewFormatter returns the Realtime API protocol codec.
func (p *Provider) NewFormatter() live.Formatter { return &Formatter{} }

// InputFormat returns the PCM layout the API accepts.
func (p *Provider) InputFormat() audio.Format { return audio.PCM16Mono(sampleRate) }

// OutputFormat returns the PCM layout the API produces.
func (p *Provider) OutputFormat() audio.Format { return audio.PCM16Mono(sampleRate) }
