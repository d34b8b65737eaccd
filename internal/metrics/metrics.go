// Package metrics exposes Prometheus instrumentation for stream sessions and
// the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream service.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	sessionsCreated  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	spawnFailures    *prometheus.CounterVec
	bytesStreamed    prometheus.Counter
	activeSessions   prometheus.Gauge
	sessionDuration  prometheus.Histogram
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytdln_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytdln_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytdln_sessions_created_total",
			Help: "Total number of stream sessions started",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdln_sessions_finished_total",
			Help: "Total number of stream sessions that reached a terminal state",
		}, []string{"status"}),
		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdln_spawn_failures_total",
			Help: "Total number of subprocess spawn failures",
		}, []string{"process"}),
		bytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytdln_bytes_streamed_total",
			Help: "Total number of transcoder output bytes delivered",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytdln_active_sessions",
			Help: "Number of live stream sessions",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ytdln_session_duration_seconds",
			Help:    "Wall-clock duration of finished stream sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsCreated,
		m.sessionsFinished,
		m.spawnFailures,
		m.bytesStreamed,
		m.activeSessions,
		m.sessionDuration,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// SessionStarted records a new live session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.activeSessions.Inc()
}

// SessionFinished records a session leaving the live registry.
func (m *Metrics) SessionFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status).Inc()
	m.activeSessions.Dec()
	m.sessionDuration.Observe(seconds)
}

// SpawnFailed records a failed subprocess start.
func (m *Metrics) SpawnFailed(process string) {
	if m == nil {
		return
	}
	m.spawnFailures.WithLabelValues(process).Inc()
}

// AddBytes records n delivered output bytes.
func (m *Metrics) AddBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesStreamed.Add(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
