package live

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/converse-ai/converse/pkg/metrics"
	"github.com/converse-ai/converse/pkg/trace"
	"github.com/converse-ai/converse/pkg/transport"
)

// backoffPolicy builds the reconnect delay schedule:
// delay(n) = min(InitialDelay * BackoffMultiplier^n, MaxDelay), exact.
// Randomization is disabled so the schedule is reproducible.
func backoffPolicy(cfg ReconnectConfig) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = cfg.BackoffMultiplier
	policy.MaxInterval = cfg.MaxDelay
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// reconnect re-establishes the transport after cause killed it. Each outage
// starts a fresh schedule, so the attempt counter resets on every success.
//
// On success it returns the replacement client plus the events to emit: the
// resumed SessionUpdated marker followed by whatever arrived during the new
// handshake, minus the acknowledgement itself (the caller's session never
// ended, so it must not see a second SessionCreated). On failure the error
// is terminal: ErrClosed when the session closed mid-wait, otherwise the
// reconnect_exhausted or connection_error to surface before shutdown.
func (s *Session) reconnect(cause error) (transport.Client, []Event, error) {
	// The dead connection's queued frames drain and drop while we are down,
	// and any audio from the interrupted turn is stale for good.
	s.setClient(nil)
	s.gen.Add(1)

	if !s.cfg.AutoReconnect || s.cfg.Reconnect.MaxAttempts == 0 {
		return nil, nil, NewConnectionError("connection lost", cause)
	}

	s.state.Store(int32(StateReconnecting))
	s.logger.Warn("connection lost, reconnecting", zap.Error(cause))

	ctx, span := trace.StartSpan(s.ctx, "live.reconnect",
		oteltrace.WithAttributes(trace.SessionAttrs(s.id)...))
	defer span.End()

	policy := backoffPolicy(s.cfg.Reconnect)
	lastErr := cause

	for attempt := 0; attempt < s.cfg.Reconnect.MaxAttempts; attempt++ {
		delay := policy.NextBackOff()
		trace.AddEvent(span, "reconnect.wait",
			attribute.Int("attempt", attempt),
			attribute.String("delay", delay.String()))

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return nil, nil, ErrClosed
		}

		client, pending, err := s.establish(ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil, nil, ErrClosed
			}
			lastErr = err
			metrics.ReconnectAttemptsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			s.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		metrics.ReconnectAttemptsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		s.setClient(client)
		s.state.Store(int32(StateActive))
		s.logger.Info("reconnected", zap.Int("attempt", attempt+1))

		events := make([]Event, 0, len(pending)+1)
		events = append(events, &SessionUpdated{Resumed: true})
		for _, ev := range pending {
			if ev.Kind() == EventSessionCreated {
				continue
			}
			events = append(events, ev)
		}
		return client, events, nil
	}

	err := newReconnectExhausted(s.cfg.Reconnect.MaxAttempts, lastErr)
	trace.RecordError(span, err)
	s.logger.Error("reconnect exhausted", zap.Error(err))
	return nil, nil, err
}
