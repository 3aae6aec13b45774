package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for workflow
// execution, namespaced "flowmesh_":
//
//  1. inflight_vertices (gauge): vertex instances executing concurrently. Labels: run_id.
//  2. gate_waiting (gauge): workers blocked on the priority gate. Labels: run_id.
//  3. mailbox_depth (gauge): pending envelopes per vertex. Labels: run_id, vertex_id.
//  4. vertex_latency_ms (histogram): Execute duration. Labels: run_id, vertex_id, status.
//  5. retries_total (counter): retry attempts. Labels: run_id, vertex_id, reason.
//  6. dead_letters_total (counter): envelopes superseded into the dead-letter queue. Labels: run_id, vertex_id, reason.
//  7. breaker_state (gauge): 0=Closed, 1=HalfOpen, 2=Open. Labels: vertex_kind.
//
// Thread-safe: all recording methods use Prometheus's own atomic client
// internally; the mutex here only guards Enable/Disable.
type PrometheusMetrics struct {
	inflightVertices prometheus.Gauge
	gateWaiting      prometheus.Gauge
	mailboxDepth     *prometheus.GaugeVec
	vertexLatency    *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers every flowmesh_ metric with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightVertices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Name:      "inflight_vertices",
			Help:      "Vertex instances currently executing concurrently",
		}),
		gateWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Name:      "gate_waiting",
			Help:      "Workers currently blocked waiting for priority gate admission",
		}),
		mailboxDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Name:      "mailbox_depth",
			Help:      "Pending (Ready or Leased) envelopes in a vertex's mailbox",
		}, []string{"run_id", "vertex_id"}),
		vertexLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowmesh",
			Name:      "vertex_latency_ms",
			Help:      "Vertex Execute duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"run_id", "vertex_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmesh",
			Name:      "retries_total",
			Help:      "Cumulative retry attempts",
		}, []string{"run_id", "vertex_id", "reason"}),
		deadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmesh",
			Name:      "dead_letters_total",
			Help:      "Envelopes superseded into the dead-letter queue",
		}, []string{"run_id", "vertex_id", "reason"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per vertex kind: 0=Closed 1=HalfOpen 2=Open",
		}, []string{"vertex_kind"}),
	}
}

func (pm *PrometheusMetrics) RecordVertexLatency(runID, vertexID string, d time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.vertexLatency.WithLabelValues(runID, vertexID, status).Observe(float64(d.Milliseconds()))
}

func (pm *PrometheusMetrics) IncrementRetries(runID, vertexID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(runID, vertexID, reason).Inc()
}

func (pm *PrometheusMetrics) IncrementDeadLetters(runID, vertexID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.deadLetters.WithLabelValues(runID, vertexID, reason).Inc()
}

func (pm *PrometheusMetrics) SetMailboxDepth(runID, vertexID string, depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.mailboxDepth.WithLabelValues(runID, vertexID).Set(float64(depth))
}

func (pm *PrometheusMetrics) SetInflightVertices(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightVertices.Set(float64(count))
}

func (pm *PrometheusMetrics) SetGateWaiting(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.gateWaiting.Set(float64(count))
}

func (pm *PrometheusMetrics) SetBreakerState(kind VertexKind, state string) {
	if !pm.isEnabled() {
		return
	}
	var v float64
	switch state {
	case "HalfOpen":
		v = 1
	case "Open":
		v = 2
	}
	pm.breakerState.WithLabelValues(string(kind)).Set(v)
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable stops metric recording; useful in tests exercising failure paths
// without polluting assertions on counters.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
