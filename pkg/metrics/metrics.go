// Package metrics exposes the engine's Prometheus collectors. Collectors are
// registered on the default registry at import time; serve them with
// promhttp.Handler (the relay mounts it at /metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "converse_active_sessions",
		Help: "Number of open live sessions",
	})
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "converse_relay_connections",
		Help: "Number of connected relay callers",
	})
)

// Counters
var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converse_sessions_created_total",
		Help: "Total live sessions successfully established",
	})
	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converse_relay_sessions_rejected_total",
		Help: "Relay connections rejected by auth or capacity limits",
	})
	ReconnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_reconnect_attempts_total",
		Help: "Total reconnect attempts by outcome",
	}, []string{"outcome"})
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_frames_total",
		Help: "Total provider frames by direction",
	}, []string{"direction"})
	DroppedAudioTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converse_dropped_audio_frames_total",
		Help: "Outbound audio frames dropped by interrupts and reconnects",
	})
	ProtocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converse_protocol_errors_total",
		Help: "Provider frames that failed to decode or were unrecognized",
	})
)

// Histograms
var (
	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "converse_connect_duration_ms",
		Help:    "Time from dial to session acknowledgement in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// Label values for ReconnectAttemptsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Label values for FramesTotal.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)
