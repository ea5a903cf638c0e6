package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Knowledge request flow and per-stage pipeline latency
//   - Memory store population and cache effectiveness
//   - Embedding provider degradations to the fallback vectorizer
//   - Learning queue pressure and concept drift detections
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordRequest("ok", time.Since(start).Seconds())
//	defer metrics.StageDuration.WithLabelValues("analyzing").Observe(time.Since(start).Seconds())
type Metrics struct {
	// RequestCounter counts knowledge requests.
	// Labels: outcome (ok|degraded)
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures end-to-end request latency in seconds.
	// Labels: outcome (ok|degraded)
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s
	RequestDuration *prometheus.HistogramVec

	// StageDuration measures per-stage pipeline latency in seconds.
	// Labels: stage (extracting|analyzing|synthesizing|validating)
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StageDuration *prometheus.HistogramVec

	// StoreOperations counts memory store operations.
	// Labels: op (store|search_semantic|search_graph|consolidate|prune), status (success|error)
	StoreOperations *prometheus.CounterVec

	// NodeCount tracks the current number of knowledge nodes.
	NodeCount prometheus.Gauge

	// RelationshipCount tracks the current number of relationships.
	RelationshipCount prometheus.Gauge

	// CacheHitRate tracks the combined hit rate of the store caches.
	CacheHitRate prometheus.Gauge

	// EmbeddingFallbacks counts embedding calls degraded to the
	// deterministic fallback vectorizer.
	EmbeddingFallbacks prometheus.Counter

	// LearningQueueDepth tracks jobs waiting in the learning queue.
	LearningQueueDepth prometheus.Gauge

	// LearningDropped counts learning jobs dropped under backpressure.
	LearningDropped prometheus.Counter

	// DriftDetections counts concept drift flags raised by the learning engine.
	DriftDetections prometheus.Counter

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_requests_total",
				Help: "Total number of knowledge requests by outcome",
			},
			[]string{"outcome"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_request_duration_seconds",
				Help:    "End-to-end knowledge request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"outcome"},
		),

		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_pipeline_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),

		StoreOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_store_operations_total",
				Help: "Total number of memory store operations by operation and status",
			},
			[]string{"op", "status"},
		),

		NodeCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_memory_nodes",
				Help: "Current number of knowledge nodes in the store",
			},
		),

		RelationshipCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_memory_relationships",
				Help: "Current number of relationships in the store",
			},
		),

		CacheHitRate: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_cache_hit_rate",
				Help: "Combined hit rate of the query and embedding caches",
			},
		),

		EmbeddingFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cortex_embedding_fallbacks_total",
				Help: "Total embedding calls degraded to the fallback vectorizer",
			},
		),

		LearningQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_learning_queue_depth",
				Help: "Current number of jobs waiting in the learning queue",
			},
		),

		LearningDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cortex_learning_dropped_total",
				Help: "Total learning jobs dropped under backpressure",
			},
		),

		DriftDetections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cortex_drift_detections_total",
				Help: "Total concept drift flags raised by the learning engine",
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordRequest records completion of a knowledge request.
//
// Example:
//
//	start := time.Now()
//	// ... process request ...
//	metrics.RecordRequest("ok", time.Since(start).Seconds())
func (m *Metrics) RecordRequest(outcome string, durationSeconds float64) {
	m.RequestCounter.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStoreOperation increments the store operation counter.
//
// Example:
//
//	metrics.RecordStoreOperation("search_semantic", "success")
func (m *Metrics) RecordStoreOperation(op, status string) {
	m.StoreOperations.WithLabelValues(op, status).Inc()
}

// UpdateStoreGauges refreshes the store population and cache gauges.
// Called after mutations and on the maintenance schedule.
func (m *Metrics) UpdateStoreGauges(nodes, relationships int, cacheHitRate float64) {
	m.NodeCount.Set(float64(nodes))
	m.RelationshipCount.Set(float64(relationships))
	m.CacheHitRate.Set(cacheHitRate)
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("POST", "/v1/query", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
