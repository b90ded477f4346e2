package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/transport"
)

// backendClient is a scripted provider connection. Frames pushed with serve
// arrive on the session's read loop; outbound frames land on sent.
type backendClient struct {
	frames chan transport.Frame
	sent   chan transport.Frame

	mu     sync.Mutex
	closed bool
	err    error
}

func newBackendClient() *backendClient {
	c := &backendClient{
		frames: make(chan transport.Frame, 64),
		sent:   make(chan transport.Frame, 64),
	}
	c.serve("created")
	return c
}

func (c *backendClient) Send(frame transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent <- frame
	return nil
}

func (c *backendClient) Frames() <-chan transport.Frame { return c.frames }

func (c *backendClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *backendClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *backendClient) serve(payload string) {
	c.frames <- transport.TextFrame([]byte(payload))
}

// lineFormatter speaks a trivial line protocol so tests can script provider
// traffic without a real wire codec.
type lineFormatter struct{}

func (lineFormatter) BuildSessionUpdate(cfg live.SessionConfig, tools []live.ToolSchema) (transport.Frame, error) {
	return transport.TextFrame([]byte("update")), nil
}

func (lineFormatter) EncodeOutbound(msg live.Outbound) (transport.Frame, error) {
	switch msg.Type {
	case live.OutboundAudio:
		return transport.TextFrame(append([]byte("audio:"), msg.Audio...)), nil
	case live.OutboundText:
		return transport.TextFrame([]byte("text:" + msg.Text)), nil
	default:
		return transport.TextFrame([]byte(msg.Type)), nil
	}
}

func (lineFormatter) DecodeInbound(frame transport.Frame) (live.Event, error) {
	payload := string(frame.Data)
	switch {
	case payload == "created":
		return &live.SessionCreated{ProviderSessionID: "prov-1", Model: "fake-model"}, nil
	case payload == "turn":
		return &live.TurnComplete{}, nil
	case strings.HasPrefix(payload, "text:"):
		return &live.TextDelta{Text: strings.TrimPrefix(payload, "text:")}, nil
	default:
		return nil, nil
	}
}

type lineProvider struct {
	name string
}

func (p *lineProvider) Name() string { return p.name }

func (p *lineProvider) BuildEndpoint() (string, error) { return "ws://provider.test/live", nil }

func (p *lineProvider) BuildHeaders() (http.Header, error) { return http.Header{}, nil }

func (p *lineProvider) NewFormatter() live.Formatter { return lineFormatter{} }

func (p *lineProvider) InputFormat() audio.Format { return audio.PCM16Mono(16000) }

func (p *lineProvider) OutputFormat() audio.Format { return audio.PCM16Mono(24000) }

// backend hands out scripted provider connections and records what the relay
// asked the factory for.
type backend struct {
	mu        sync.Mutex
	clients   []*backendClient
	dialErr   error
	providers []string
	models    []string
}

func (b *backend) dial(ctx context.Context, endpoint string, header http.Header) (transport.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := newBackendClient()
	b.clients = append(b.clients, c)
	return c, nil
}

func (b *backend) factory(provider, model string) (live.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers = append(b.providers, provider)
	b.models = append(b.models, model)
	if provider == "unavailable" {
		return nil, errors.New("no such provider")
	}
	return &lineProvider{name: provider}, nil
}

func (b *backend) client(t *testing.T, i int) *backendClient {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Greater(t, len(b.clients), i, "backend connection %d missing", i)
	return b.clients[i]
}

func newTestRelay(t *testing.T, cfg *Config) (*Server, *httptest.Server, *backend) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	be := &backend{}
	cfg.SessionOptions = []live.Option{
		live.WithDialer(be.dial),
		live.WithConnectTimeout(2 * time.Second),
	}

	srv := New(cfg)
	srv.SetProviderFactory(be.factory)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv, ts, be
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialCaller(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCallerEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func recvFrame(t *testing.T, c *backendClient) string {
	t.Helper()
	select {
	case frame := <-c.sent:
		return string(frame.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for provider frame")
		return ""
	}
}

func TestConversationRoundTrip(t *testing.T) {
	srv, ts, be := newTestRelay(t, nil)

	conn := dialCaller(t, wsURL(ts, "/v1/conversation"), nil)
	provider := be.client(t, 0)
	assert.Equal(t, "update", recvFrame(t, provider))

	ev := readCallerEvent(t, conn)
	assert.Equal(t, "SESSION_CREATED", ev["type"])
	assert.Equal(t, 1, srv.SessionCount())

	// Caller command reaches the provider.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"text","data":"hi"}`)))
	assert.Equal(t, "text:hi", recvFrame(t, provider))

	// Provider output reaches the caller.
	provider.serve("text:echo")
	ev = readCallerEvent(t, conn)
	assert.Equal(t, "TEXT_DELTA", ev["type"])
	assert.Equal(t, "echo", ev["text"])

	provider.serve("turn")
	ev = readCallerEvent(t, conn)
	assert.Equal(t, "TURN_COMPLETE", ev["type"])

	// Hanging up tears the session down.
	conn.Close()
	assert.Eventually(t, func() bool { return srv.SessionCount() == 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestAuthToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthToken = "secret"
	_, ts, _ := newTestRelay(t, cfg)
	url := wsURL(ts, "/v1/conversation")

	t.Run("missing", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer nope"}}
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer secret"}}
		conn := dialCaller(t, url, header)
		ev := readCallerEvent(t, conn)
		assert.Equal(t, "SESSION_CREATED", ev["type"])
	})
}

func TestProviderAndModelSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedModels = []string{"model-a"}
	_, ts, be := newTestRelay(t, cfg)

	t.Run("model not allowed", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(
			wsURL(ts, "/v1/conversation?model=model-b"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(
			wsURL(ts, "/v1/conversation?provider=unavailable"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("explicit provider and model", func(t *testing.T) {
		conn := dialCaller(t, wsURL(ts, "/v1/conversation?provider=gemini&model=model-a"), nil)
		readCallerEvent(t, conn)

		be.mu.Lock()
		defer be.mu.Unlock()
		assert.Equal(t, "gemini", be.providers[len(be.providers)-1])
		assert.Equal(t, "model-a", be.models[len(be.models)-1])
	})

	t.Run("default provider", func(t *testing.T) {
		conn := dialCaller(t, wsURL(ts, "/v1/conversation"), nil)
		readCallerEvent(t, conn)

		be.mu.Lock()
		defer be.mu.Unlock()
		assert.Equal(t, "openai", be.providers[len(be.providers)-1])
		assert.Equal(t, "", be.models[len(be.models)-1])
	})
}

func TestPerIPSessionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessionsPerIP = 1
	srv, ts, _ := newTestRelay(t, cfg)
	url := wsURL(ts, "/v1/conversation")

	first := dialCaller(t, url, nil)
	readCallerEvent(t, first)
	require.Equal(t, 1, srv.SessionCount())

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// The slot frees once the first caller hangs up.
	first.Close()
	assert.Eventually(t, func() bool {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if resp != nil {
			resp.Body.Close()
		}
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 50*time.Millisecond)
}

func TestBadCommandRelayedAsError(t *testing.T) {
	_, ts, be := newTestRelay(t, nil)
	conn := dialCaller(t, wsURL(ts, "/v1/conversation"), nil)
	provider := be.client(t, 0)
	recvFrame(t, provider) // session update
	readCallerEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"hologram"}`)))
	ev := readCallerEvent(t, conn)
	assert.Equal(t, "ERROR", ev["type"])
	assert.Equal(t, "protocol_error", ev["code"])

	// The session survives the bad command.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"text","data":"still here"}`)))
	assert.Equal(t, "text:still here", recvFrame(t, provider))
}

func TestConnectFailureReachesCaller(t *testing.T) {
	cfg := DefaultConfig()
	be := &backend{dialErr: errors.New("connection refused")}
	cfg.SessionOptions = []live.Option{
		live.WithDialer(be.dial),
		live.WithConnectTimeout(time.Second),
	}
	srv := New(cfg)
	srv.SetProviderFactory(be.factory)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialCaller(t, wsURL(ts, "/v1/conversation"), nil)
	ev := readCallerEvent(t, conn)
	assert.Equal(t, "ERROR", ev["type"])
	assert.Equal(t, "connection_error", ev["code"])

	// The relay closes the socket after the terminal error.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, srv.SessionCount())
}

func TestStopClosesActiveSessions(t *testing.T) {
	srv, ts, _ := newTestRelay(t, nil)
	conn := dialCaller(t, wsURL(ts, "/v1/conversation"), nil)
	readCallerEvent(t, conn)
	require.Equal(t, 1, srv.SessionCount())

	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, 0, srv.SessionCount())

	// The caller's socket dies once its session is gone.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHealthz(t *testing.T) {
	_, ts, _ := newTestRelay(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts, _ := newTestRelay(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "converse_relay_connections")
}

func TestStartAndStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg)
	srv.SetProviderFactory(func(provider, model string) (live.Provider, error) {
		return nil, fmt.Errorf("unused")
	})

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}
