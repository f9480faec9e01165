// Package metrics exposes Prometheus metrics for the HTTP surface, the
// search backend, the event bus and evaluation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "cisi"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests         *prometheus.CounterVec   // labels: method, path, status
	HTTPDuration         *prometheus.HistogramVec // labels: method, path
	HTTPRequestsInFlight prometheus.Gauge

	// Backend metrics
	BackendLatency *prometheus.HistogramVec // labels: operation
	BackendErrors  *prometheus.CounterVec   // labels: operation

	// Evaluation metrics
	QueriesEvaluated prometheus.Counter
	QueriesDegraded  prometheus.Counter
	QueriesSkipped   prometheus.Counter
	QueryLatency     prometheus.Histogram

	// Bus metrics
	BusEventsPublished *prometheus.CounterVec   // labels: topic
	BusEventLatency    *prometheus.HistogramVec // labels: topic
	BusErrors          *prometheus.CounterVec   // labels: topic
}

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// New creates a metrics instance with all metrics registered, plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),

		BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Search backend call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"operation"}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed search backend calls",
		}, []string{"operation"}),

		QueriesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_queries_total",
			Help:      "Queries evaluated against relevance judgments",
		}),
		QueriesDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_queries_degraded_total",
			Help:      "Evaluated queries whose search failed",
		}),
		QueriesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_queries_skipped_total",
			Help:      "Queries skipped because they have no relevant documents",
		}),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_query_duration_seconds",
			Help:      "Search latency of evaluated queries",
			Buckets:   latencyBuckets,
		}),

		BusEventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published on the bus",
		}, []string{"topic"}),
		BusEventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_duration_seconds",
			Help:      "Bus publish duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"topic"}),
		BusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Failed bus publishes",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration, m.HTTPRequestsInFlight,
		m.BackendLatency, m.BackendErrors,
		m.QueriesEvaluated, m.QueriesDegraded, m.QueriesSkipped, m.QueryLatency,
		m.BusEventsPublished, m.BusEventLatency, m.BusErrors,
	)
	return m
}

// RecordHTTP records an HTTP request.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBackendCall records one search backend call.
func (m *Metrics) RecordBackendCall(operation string, latency time.Duration, err error) {
	m.BackendLatency.WithLabelValues(operation).Observe(latency.Seconds())
	if err != nil {
		m.BackendErrors.WithLabelValues(operation).Inc()
	}
}

// RecordQuery records one evaluated query.
func (m *Metrics) RecordQuery(latency time.Duration, degraded bool) {
	m.QueriesEvaluated.Inc()
	m.QueryLatency.Observe(latency.Seconds())
	if degraded {
		m.QueriesDegraded.Inc()
	}
}

// RecordSkipped records queries left out of an evaluation run.
func (m *Metrics) RecordSkipped(n int) {
	m.QueriesSkipped.Add(float64(n))
}

// RecordBusPublish records one bus publish.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventLatency.WithLabelValues(topic).Observe(latency.Seconds())
	if err != nil {
		m.BusErrors.WithLabelValues(topic).Inc()
		return
	}
	m.BusEventsPublished.WithLabelValues(topic).Inc()
}
