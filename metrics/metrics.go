// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "empath"

type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TurnDuration    prometheus.Histogram
	TurnsRejected   *prometheus.CounterVec
	Modalities      *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	Replies         *prometheus.CounterVec
	Confidence      prometheus.Histogram
	ActiveSessions  prometheus.Gauge
}

// New registers every collector with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
			},
			[]string{"method", "endpoint"},
		),
		TurnDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end duration of one pipeline turn",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		TurnsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_rejected_total",
				Help:      "Turns rejected before any modality ran",
			},
			[]string{"reason"},
		),
		Modalities: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "modality_readings_total",
				Help:      "Modality adapter results by outcome",
			},
			[]string{"modality", "outcome"},
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "LLM provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "LLM provider attempt latency in seconds",
			},
			[]string{"provider"},
		),
		Replies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_total",
				Help:      "Replies by source",
			},
			[]string{"source"},
		),
		Confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fused_confidence",
				Help:      "Confidence of fused emotion estimates",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of sessions held in memory",
			},
		),
	}
}

func (m *Metrics) ProviderAttempt(provider, outcome string, took time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) ReplyServed(fallback bool) {
	source := "provider"
	if fallback {
		source = "template"
	}
	m.Replies.WithLabelValues(source).Inc()
}

func (m *Metrics) ModalityResult(modality, outcome string) {
	m.Modalities.WithLabelValues(modality, outcome).Inc()
}

func (m *Metrics) TurnDone(took time.Duration, confidence float64, sessions int) {
	m.TurnDuration.Observe(took.Seconds())
	m.Confidence.Observe(confidence)
	m.ActiveSessions.Set(float64(sessions))
}

func (m *Metrics) TurnRejected(reason string) {
	m.TurnsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionsHeld(n int) {
	m.ActiveSessions.Set(float64(n))
}
