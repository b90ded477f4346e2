// Package relay exposes live conversation sessions to WebSocket callers. Each
// caller connection is bridged onto one provider session: inbound JSON
// commands are parsed and applied, and the session's event stream is marshaled
// back down the socket.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/converse-ai/converse/pkg/live"
)

// ProviderFactory builds the provider for one caller connection. The relay
// passes the caller's requested provider name and model; an empty model means
// the provider's default.
type ProviderFactory func(provider, model string) (live.Provider, error)

// Config holds the relay server configuration.
type Config struct {
	// Addr is the address to listen on (e.g. ":8080").
	Addr string

	// Path is the WebSocket conversation endpoint path.
	Path string

	// AuthToken is the bearer token callers must present.
	// If empty, authentication is disabled.
	AuthToken string

	// DefaultProvider is used when the caller does not pass ?provider=.
	DefaultProvider string

	// AllowedModels restricts the ?model= parameter. Empty allows any model.
	AllowedModels []string

	// MaxSessionsPerIP limits concurrent sessions per caller IP.
	// 0 means no limit.
	MaxSessionsPerIP int

	// Session is the configuration applied to every provider session.
	Session live.SessionConfig

	// SessionOptions are passed to live.Connect for every session.
	SessionOptions []live.Option

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int

	// Logger receives relay and session logs. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		Path:             "/v1/conversation",
		DefaultProvider:  "openai",
		MaxSessionsPerIP: 10,
		Session:          live.DefaultSessionConfig(),
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// Server relays WebSocket callers onto live provider sessions.
type Server struct {
	cfg     *Config
	factory ProviderFactory
	logger  *zap.Logger

	sessions   map[string]*live.Session
	sessionsMu sync.RWMutex

	ipSessions   map[string]int
	ipSessionsMu sync.Mutex

	httpServer *http.Server
	router     chi.Router
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a relay server. The provider factory must be set before Start.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		sessions:   make(map[string]*live.Session),
		ipSessions: make(map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; customize for production.
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get(cfg.Path, s.handleConversation)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r

	return s
}

// SetProviderFactory sets the factory used to build per-connection providers.
// Must be called before Start.
func (s *Server) SetProviderFactory(factory ProviderFactory) {
	s.factory = factory
}

// Handler returns the relay's HTTP handler, for mounting on an external
// server or an httptest instance.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening. It returns once the listener is up or has failed.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	s.logger.Info("relay listening",
		zap.String("addr", s.cfg.Addr),
		zap.String("path", s.cfg.Path))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the relay down: every registered session is closed, then the
// HTTP server drains within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.sessionsMu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.sessions = make(map[string]*live.Session)
	s.sessionsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}
