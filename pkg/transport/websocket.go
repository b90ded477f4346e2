package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultPingPeriod       = 54 * time.Second // Must be less than pong wait
	DefaultFrameBuffer      = 32
)

// WebSocketConfig holds tuning parameters for the WebSocket client.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	FrameBuffer      int
	Logger           *zap.Logger
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteWait:        DefaultWriteWait,
		PongWait:         DefaultPongWait,
		PingPeriod:       DefaultPingPeriod,
		FrameBuffer:      DefaultFrameBuffer,
	}
}

// DialWebSocket establishes a WebSocket connection with the default
// configuration. It satisfies DialFunc.
func DialWebSocket(ctx context.Context, endpoint string, header http.Header) (Client, error) {
	return DialWebSocketWithConfig(ctx, endpoint, header, DefaultWebSocketConfig())
}

// DialWebSocketWithConfig establishes a WebSocket connection with a custom
// configuration.
func DialWebSocketWithConfig(ctx context.Context, endpoint string, header http.Header, cfg WebSocketConfig) (Client, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultFrameBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("websocket dial %s: %w (status %s)", endpoint, err, resp.Status)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}

	wsCtx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		conn:       conn,
		frames:     make(chan Frame, cfg.FrameBuffer),
		writeWait:  cfg.WriteWait,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod,
		logger:     cfg.Logger,
		ctx:        wsCtx,
		cancel:     cancel,
	}
	c.start()
	return c, nil
}

type wsClient struct {
	conn *websocket.Conn

	frames chan Frame

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	logger *zap.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

var _ Client = (*wsClient)(nil)

func (c *wsClient) start() {
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	c.wg.Add(1)
	go c.readPump()

	c.wg.Add(1)
	go c.pingPump()
}

// readPump moves inbound messages onto the frame channel. Sends block when
// the buffer is full so a lagging consumer stalls the socket read instead of
// losing frames.
func (c *wsClient) readPump() {
	defer c.wg.Done()
	defer close(c.frames)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.setErr(err)
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("websocket read failed", zap.Error(err))
				}
			}
			return
		}

		frame := Frame{Binary: msgType == websocket.BinaryMessage, Data: data}
		select {
		case c.frames <- frame:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *wsClient) pingPump() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				if c.ctx.Err() == nil {
					c.setErr(err)
					c.logger.Debug("websocket ping failed", zap.Error(err))
					// Kick the read pump loose so the frame channel closes.
					c.conn.Close()
				}
				return
			}
		}
	}
}

func (c *wsClient) Send(frame Frame) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	msgType := websocket.TextMessage
	if frame.Binary {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(msgType, frame.Data); err != nil {
		if c.ctx.Err() != nil {
			return ErrClosed
		}
		c.setErr(err)
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *wsClient) Frames() <-chan Frame {
	return c.frames
}

func (c *wsClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsClient) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *wsClient) Close() error {
	c.once.Do(func() {
		c.cancel()

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.wg.Wait()
	})
	return nil
}
