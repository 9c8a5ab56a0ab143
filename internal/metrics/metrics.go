// Package metrics exposes Prometheus instrumentation for the encode pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stillcast"

// Encode outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	engineLoads     *prometheus.CounterVec
	encodes         *prometheus.CounterVec
	encodeDuration  prometheus.Histogram
	cleanupFailures prometheus.Counter
	activeSessions  prometheus.Gauge
	artifacts       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		engineLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_loads_total",
			Help:      "Engine load attempts by result.",
		}, []string{"result"}),
		encodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encodes_total",
			Help:      "Encode runs by outcome.",
		}, []string{"outcome"}),
		encodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Wall time of encode runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Virtual files that could not be deleted after a run.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Encode sessions currently running.",
		}),
		artifacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts",
			Help:      "Artifacts currently retained.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.engineLoads,
			m.encodes,
			m.encodeDuration,
			m.cleanupFailures,
			m.activeSessions,
			m.artifacts,
		)
	}
	return m
}

// EngineLoad records a load attempt.
func (m *Metrics) EngineLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.engineLoads.WithLabelValues(result).Inc()
}

// EncodeFinished records the outcome and duration of a run.
func (m *Metrics) EncodeFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.encodes.WithLabelValues(outcome).Inc()
	m.encodeDuration.Observe(elapsed.Seconds())
}

// CleanupFailed records a virtual file left behind.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SetArtifacts sets the number of retained artifacts.
func (m *Metrics) SetArtifacts(n int) {
	if m == nil {
		return
	}
	m.artifacts.Set(float64(n))
}
