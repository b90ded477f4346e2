package relay

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/metrics"
	"github.com/converse-ai/converse/pkg/trace"
)

const closeGracePeriod = time.Second

// callerConn serializes writes to one caller's WebSocket. The event pump and
// the command loop both write; gorilla allows a single concurrent writer.
type callerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *callerConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// writeEvent marshals and sends one event, dropping it on marshal failure.
func (c *callerConn) writeEvent(ev live.Event) error {
	data, err := live.MarshalEvent(ev)
	if err != nil {
		return nil
	}
	return c.write(data)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token != s.cfg.AuthToken {
			metrics.SessionsRejectedTotal.Inc()
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = s.cfg.DefaultProvider
	}
	model := r.URL.Query().Get("model")
	if model != "" && !s.modelAllowed(model) {
		metrics.SessionsRejectedTotal.Inc()
		http.Error(w, fmt.Sprintf("Model not allowed: %s", model), http.StatusBadRequest)
		return
	}

	if s.factory == nil {
		http.Error(w, "No provider factory configured", http.StatusInternalServerError)
		return
	}
	provider, err := s.factory(providerName, model)
	if err != nil {
		metrics.SessionsRejectedTotal.Inc()
		http.Error(w, fmt.Sprintf("Provider unavailable: %v", err), http.StatusBadRequest)
		return
	}

	clientIP := callerIP(r)
	if s.cfg.MaxSessionsPerIP > 0 {
		s.ipSessionsMu.Lock()
		count := s.ipSessions[clientIP]
		s.ipSessionsMu.Unlock()
		if count >= s.cfg.MaxSessionsPerIP {
			metrics.SessionsRejectedTotal.Inc()
			http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	logger := s.logger.With(
		zap.String("conn", connID),
		zap.String("provider", providerName),
		zap.String("ip", clientIP),
	)

	ctx, span := trace.StartSpan(s.ctx, "relay.conversation",
		oteltrace.WithAttributes(trace.ConnectionAttrs(connID, s.cfg.Path)...),
		oteltrace.WithAttributes(attribute.String(trace.AttrProviderName, providerName)))
	defer span.End()

	caller := &callerConn{conn: conn}

	opts := append([]live.Option{live.WithLogger(logger)}, s.cfg.SessionOptions...)
	sess, err := live.Connect(ctx, provider, s.cfg.Session, nil, opts...)
	if err != nil {
		logger.Warn("session connect failed", zap.Error(err))
		trace.RecordError(span, err)
		metrics.SessionsRejectedTotal.Inc()
		caller.writeEvent(terminalError(err))
		closeConn(conn)
		return
	}

	s.registerSession(connID, sess, clientIP)
	defer s.unregisterSession(connID, clientIP)
	metrics.RelayConnections.Inc()
	defer metrics.RelayConnections.Dec()

	logger.Info("caller connected", zap.String("session", sess.ID()))

	go s.pumpEvents(caller, sess, logger)
	s.serveCaller(caller, sess, logger)
}

// pumpEvents copies the session's event stream down the caller's socket.
// When the stream ends it closes the socket, which unblocks the command loop.
func (s *Server) pumpEvents(caller *callerConn, sess *live.Session, logger *zap.Logger) {
	for ev := range sess.Events() {
		if err := caller.writeEvent(ev); err != nil {
			logger.Warn("caller write failed", zap.Error(err))
			sess.Close()
			return
		}
	}
	closeConn(caller.conn)
}

// serveCaller runs the caller command loop until the socket or session dies.
func (s *Server) serveCaller(caller *callerConn, sess *live.Session, logger *zap.Logger) {
	defer sess.Close()
	defer caller.conn.Close()

	for {
		_, data, err := caller.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("caller read error", zap.Error(err))
			}
			return
		}

		cmd, err := live.ParseCommand(data)
		if err != nil {
			// Bad commands are relayed back; the session keeps running.
			caller.writeEvent(warningError(err))
			continue
		}

		if err := sess.Apply(cmd); err != nil {
			if errors.Is(err, live.ErrClosed) {
				return
			}
			caller.writeEvent(warningError(err))
		}
	}
}

func (s *Server) registerSession(connID string, sess *live.Session, clientIP string) {
	s.sessionsMu.Lock()
	s.sessions[connID] = sess
	s.sessionsMu.Unlock()

	s.ipSessionsMu.Lock()
	s.ipSessions[clientIP]++
	s.ipSessionsMu.Unlock()
}

func (s *Server) unregisterSession(connID, clientIP string) {
	s.sessionsMu.Lock()
	delete(s.sessions, connID)
	s.sessionsMu.Unlock()

	s.ipSessionsMu.Lock()
	s.ipSessions[clientIP]--
	if s.ipSessions[clientIP] <= 0 {
		delete(s.ipSessions, clientIP)
	}
	s.ipSessionsMu.Unlock()
}

func (s *Server) modelAllowed(model string) bool {
	if len(s.cfg.AllowedModels) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedModels {
		if model == allowed {
			return true
		}
	}
	return false
}

// terminalError wraps err as the error event sent when a session cannot be
// established.
func terminalError(err error) *live.ErrorEvent {
	var le *live.Error
	if !errors.As(err, &le) {
		le = live.NewConnectionError("session connect failed", err)
	}
	return &live.ErrorEvent{Err: le}
}

// warningError wraps err as a non-terminal error event relayed to the caller.
func warningError(err error) *live.ErrorEvent {
	var le *live.Error
	if !errors.As(err, &le) {
		le = live.NewProtocolError("command failed", err)
	}
	return &live.ErrorEvent{Err: le}
}

func closeConn(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	conn.Close()
}

// callerIP extracts the caller address. The RealIP middleware has already
// resolved X-Forwarded-For / X-Real-IP into RemoteAddr.
func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
