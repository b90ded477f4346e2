// Package live implements realtime bidirectional conversation sessions with
// remote generative-model providers over a persistent duplex connection.
//
// A Session owns one transport connection, speaks the provider's wire
// protocol through a Formatter, and surfaces everything the provider streams
// back on a single ordered event channel. Caller sends are fire-and-forget;
// an interrupt outranks queued audio. Connection loss is repaired by an
// exponential-backoff reconnect controller when the config enables it, and
// the repair is invisible to consumers apart from a resumed SessionUpdated
// marker.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/converse-ai/converse/pkg/audio"
	"github.com/converse-ai/converse/pkg/metrics"
	"github.com/converse-ai/converse/pkg/trace"
	"github.com/converse-ai/converse/pkg/transport"
)

// State is a session lifecycle phase.
type State int32

const (
	// StateConnecting covers dial and session handshake.
	StateConnecting State = iota
	// StateActive is the normal streaming state.
	StateActive
	// StateInterrupted follows a caller barge-in, until the provider
	// confirms the turn ended.
	StateInterrupted
	// StateReconnecting covers transparent connection repair.
	StateReconnecting
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Open reports whether the session is established and not closed.
func (s State) Open() bool {
	return s == StateActive || s == StateInterrupted
}

// outboundFrame pairs an encoded frame with the bookkeeping the write loop
// needs: audio frames carry the interrupt generation they were queued under
// and are dropped once that generation is stale.
type outboundFrame struct {
	frame   transport.Frame
	isAudio bool
	gen     uint64
}

// Session is one live conversation. Create it with Connect; consume Events
// from a single goroutine; call Close when done.
type Session struct {
	id        string
	provider  Provider
	formatter Formatter
	cfg       SessionConfig
	tools     []ToolSchema
	opts      options
	logger    *zap.Logger

	endpoint      string
	headers       http.Header
	sessionUpdate transport.Frame
	inputFormat   audio.Format

	state atomic.Int32

	clientMu sync.Mutex
	client   transport.Client

	out    chan outboundFrame
	events chan Event

	seq atomic.Uint64
	gen atomic.Uint64

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// Connect establishes a session: it validates the configuration, dials the
// provider endpoint, sends the session update, and waits for the provider's
// acknowledgement. Config problems surface synchronously as config_error
// before anything touches the network; dial failures as connection_error; a
// missing acknowledgement as protocol_error after the connect timeout.
func Connect(ctx context.Context, provider Provider, cfg SessionConfig, tools []ToolSchema, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, NewConfigError("provider must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	formatter := provider.NewFormatter()
	update, err := formatter.BuildSessionUpdate(cfg, tools)
	if err != nil {
		return nil, &Error{Kind: KindConfigError, Message: "building session update", Err: err}
	}
	endpoint, err := provider.BuildEndpoint()
	if err != nil {
		return nil, &Error{Kind: KindConfigError, Message: "building endpoint", Err: err}
	}
	headers, err := provider.BuildHeaders()
	if err != nil {
		return nil, &Error{Kind: KindConfigError, Message: "building headers", Err: err}
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            uuid.NewString(),
		provider:      provider,
		formatter:     formatter,
		cfg:           cfg,
		tools:         append([]ToolSchema(nil), tools...),
		opts:          o,
		endpoint:      endpoint,
		headers:       headers,
		sessionUpdate: update,
		inputFormat:   provider.InputFormat(),
		out:           make(chan outboundFrame, o.sendBuffer),
		events:        make(chan Event, o.eventBuffer),
		ctx:           sessCtx,
		cancel:        cancel,
	}
	s.logger = o.logger.With(zap.String("session", s.id), zap.String("provider", provider.Name()))
	s.state.Store(int32(StateConnecting))

	ctx, span := trace.StartSpan(ctx, "live.connect",
		oteltrace.WithAttributes(trace.ProviderAttrs(provider.Name())...))
	defer span.End()

	start := time.Now()
	client, pending, err := s.establish(ctx)
	if err != nil {
		trace.RecordError(span, err)
		cancel()
		return nil, err
	}

	metrics.ConnectDuration.Observe(float64(time.Since(start).Milliseconds()))
	metrics.SessionsCreatedTotal.Inc()
	metrics.ActiveSessions.Inc()
	trace.AddEvent(span, "session.created", trace.SessionAttrs(s.id)...)

	s.setClient(client)
	s.state.Store(int32(StateActive))
	s.logger.Info("session established",
		zap.String("endpoint", endpoint),
		zap.Duration("took", time.Since(start)))

	s.wg.Add(2)
	go s.readLoop(client, pending)
	go s.writeLoop()

	return s, nil
}

// establish dials the provider and completes the session handshake. The
// returned events are everything that arrived up to and including the
// acknowledgement, in arrival order, not yet delivered to the caller.
func (s *Session) establish(ctx context.Context) (transport.Client, []Event, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.connectTimeout)
	defer cancel()

	client, err := s.opts.dial(dialCtx, s.endpoint, s.headers)
	if err != nil {
		return nil, nil, NewConnectionError("dialing provider", err)
	}

	pending, err := s.handshake(client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, pending, nil
}

// handshake sends the session update and reads frames until the provider
// acknowledges the session.
func (s *Session) handshake(client transport.Client) ([]Event, error) {
	if err := client.Send(s.sessionUpdate); err != nil {
		return nil, NewConnectionError("sending session update", err)
	}

	timer := time.NewTimer(s.opts.connectTimeout)
	defer timer.Stop()

	var pending []Event
	for {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				return nil, NewConnectionError("connection lost before session acknowledgement", client.Err())
			}
			metrics.FramesTotal.WithLabelValues(metrics.DirectionIn).Inc()
			ev, err := s.formatter.DecodeInbound(frame)
			if err != nil {
				metrics.ProtocolErrorsTotal.Inc()
				ev = &ErrorEvent{Err: NewProtocolError("decoding provider frame", err)}
			}
			if ev == nil {
				continue
			}
			pending = append(pending, ev)
			if ev.Kind() == EventSessionCreated {
				return pending, nil
			}
		case <-timer.C:
			return nil, &Error{
				Kind:    KindProtocolError,
				Message: fmt.Sprintf("no session acknowledgement within %s", s.opts.connectTimeout),
			}
		case <-s.ctx.Done():
			return nil, ErrClosed
		}
	}
}

// readLoop is the sole event emitter. It decodes inbound frames in arrival
// order, drives reconnection when the transport dies, and closes the event
// channel on the way out.
func (s *Session) readLoop(client transport.Client, pending []Event) {
	defer s.wg.Done()
	defer close(s.events)
	defer s.shutdown()

	for _, ev := range pending {
		if !s.wantEvent(ev) {
			continue
		}
		if !s.emit(ev, false) {
			return
		}
	}

	for {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				cause := client.Err()
				client.Close()
				if cause == nil {
					// Locally requested close.
					return
				}
				next, resumed, rerr := s.reconnect(cause)
				if rerr != nil {
					if errors.Is(rerr, ErrClosed) {
						return
					}
					s.emit(&ErrorEvent{Err: asSessionError(rerr)}, true)
					return
				}
				client = next
				for _, ev := range resumed {
					if !s.wantEvent(ev) {
						continue
					}
					if !s.emit(ev, false) {
						return
					}
				}
				continue
			}

			metrics.FramesTotal.WithLabelValues(metrics.DirectionIn).Inc()
			ev, err := s.formatter.DecodeInbound(frame)
			if err != nil {
				metrics.ProtocolErrorsTotal.Inc()
				s.logger.Warn("failed to decode provider frame", zap.Error(err))
				ev = &ErrorEvent{Err: NewProtocolError("decoding provider frame", err)}
			}
			if ev == nil {
				continue
			}
			s.observe(ev)
			if !s.wantEvent(ev) {
				continue
			}
			if !s.emit(ev, false) {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// observe applies inbound-event side effects to the session state.
func (s *Session) observe(ev Event) {
	switch ev.(type) {
	case *TurnComplete:
		// The provider confirmed the turn ended; a barge-in is resolved.
		s.state.CompareAndSwap(int32(StateInterrupted), int32(StateActive))
	}
}

// wantEvent applies the config's transcription switches. Providers that
// cannot disable transcription at the source still honor the switches here.
func (s *Session) wantEvent(ev Event) bool {
	switch ev.(type) {
	case *InputTranscription:
		return s.cfg.InputTranscription
	case *OutputTranscription:
		return s.cfg.OutputTranscription
	}
	return true
}

// emit stamps and delivers one event, blocking while the subscriber lags so
// backpressure reaches the transport read. Returns false if the session
// closed before delivery.
func (s *Session) emit(ev Event, last bool) bool {
	ev.stamp(s.seq.Add(1), last)
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// writeLoop drains the outbound queue onto the current transport. Audio
// frames whose interrupt generation is stale are dropped, as is everything
// queued while no connection exists.
func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case of := <-s.out:
			if of.isAudio && of.gen != s.gen.Load() {
				metrics.DroppedAudioTotal.Inc()
				continue
			}
			client := s.currentClient()
			if client == nil {
				if of.isAudio {
					metrics.DroppedAudioTotal.Inc()
				}
				continue
			}
			if err := client.Send(of.frame); err != nil {
				// The read side sees the same failure and owns recovery.
				s.logger.Warn("dropping outbound frame", zap.Error(err))
				continue
			}
			metrics.FramesTotal.WithLabelValues(metrics.DirectionOut).Inc()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) enqueue(of outboundFrame) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.out <- of:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// SendAudio queues one chunk of caller audio, resampling it to the
// provider's input format when the formats differ. Fire-and-forget: the call
// never waits on network I/O.
func (s *Session) SendAudio(data []byte, format audio.Format) error {
	if err := format.Validate(); err != nil {
		return &Error{Kind: KindConfigError, Message: "invalid audio format", Err: err}
	}
	if audio.NeedsResampling(format, s.inputFormat) {
		data = audio.Resample(data, format, s.inputFormat)
	}
	frame, err := s.formatter.EncodeOutbound(Outbound{Type: OutboundAudio, Audio: data})
	if err != nil {
		return NewProtocolError("encoding audio", err)
	}
	return s.enqueue(outboundFrame{frame: frame, isAudio: true, gen: s.gen.Load()})
}

// SendText queues one user text turn.
func (s *Session) SendText(text string) error {
	return s.sendControl(Outbound{Type: OutboundText, Text: text})
}

// Interrupt cancels the in-flight model turn. Every queued-but-unsent audio
// frame is dropped so the cancellation outruns stale speech, and the session
// stays in the interrupted state until the provider confirms the turn ended.
func (s *Session) Interrupt() error {
	s.gen.Add(1)
	s.state.CompareAndSwap(int32(StateActive), int32(StateInterrupted))
	return s.sendControl(Outbound{Type: OutboundInterrupt})
}

// Commit finalizes the provider-side input audio buffer, marking the end of
// a manually controlled user turn.
func (s *Session) Commit() error {
	return s.sendControl(Outbound{Type: OutboundCommit})
}

// Clear discards the provider-side uncommitted input audio buffer.
func (s *Session) Clear() error {
	return s.sendControl(Outbound{Type: OutboundClear})
}

// CreateResponse asks the provider to start generating now, for flows with
// automatic turn detection disabled.
func (s *Session) CreateResponse() error {
	return s.sendControl(Outbound{Type: OutboundCreateResponse})
}

func (s *Session) sendControl(msg Outbound) error {
	frame, err := s.formatter.EncodeOutbound(msg)
	if err != nil {
		return NewProtocolError("encoding "+string(msg.Type), err)
	}
	if frame.Data == nil {
		// The provider's protocol has no message for this type.
		return nil
	}
	return s.enqueue(outboundFrame{frame: frame})
}

// Apply dispatches a parsed caller command to the matching send method.
func (s *Session) Apply(cmd Command) error {
	switch cmd.Type {
	case CommandAudio:
		format := cmd.Format
		if format == (audio.Format{}) {
			format = s.inputFormat
		}
		return s.SendAudio(cmd.Audio, format)
	case CommandText:
		return s.SendText(cmd.Text)
	case CommandInterrupt:
		return s.Interrupt()
	case CommandCommit:
		return s.Commit()
	case CommandCreateResponse:
		return s.CreateResponse()
	case CommandClear:
		return s.Clear()
	default:
		return NewProtocolError(fmt.Sprintf("unknown command type %q", cmd.Type), nil)
	}
}

// Events returns the session's event stream. Exactly one channel exists per
// session; events arrive in provider order and the channel closes after the
// terminal event (or after Close).
func (s *Session) Events() <-chan Event {
	return s.events
}

// ID returns the engine-assigned session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Config returns the configuration the session was established with.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

func (s *Session) setClient(c transport.Client) {
	s.clientMu.Lock()
	s.client = c
	s.clientMu.Unlock()
}

func (s *Session) currentClient() transport.Client {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.client
}

// shutdown releases the connection and stops the loops. Safe to call from
// any goroutine, any number of times; it never waits.
func (s *Session) shutdown() {
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		if c := s.currentClient(); c != nil {
			c.Close()
		}
		metrics.ActiveSessions.Dec()
		s.logger.Info("session closed")
	})
}

// Close ends the session: it cancels any in-flight reconnect, closes the
// transport, and waits for the I/O goroutines to stop. When Close returns
// the event channel is closed and drained, so no event is delivered
// afterwards. Idempotent.
func (s *Session) Close() error {
	s.shutdown()
	s.wg.Wait()
	for range s.events {
		// Discard events the subscriber never collected.
	}
	return nil
}

func asSessionError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return NewConnectionError("session failed", err)
}
