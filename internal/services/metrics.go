package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Aggregation metrics
	AggregationsRun    *prometheus.CounterVec
	AggregationLatency prometheus.Histogram
	AggregationErrors  *prometheus.CounterVec

	// Session-length materializer runs
	MaterializerRuns prometheus.Counter

	// Ingestion metrics
	TasksIngested  prometheus.Counter
	EventsIngested prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Aggregations by kind (counter - only goes up)
		AggregationsRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlens_aggregations_total",
			Help: "Total number of aggregation queries by kind",
		}, []string{"kind"}),

		// Aggregation latency histogram
		AggregationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptlens_aggregation_duration_seconds",
			Help:    "Aggregation query latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}, // full collection scans can be slow
		}),

		// Aggregation errors by kind
		AggregationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlens_aggregation_errors_total",
			Help: "Total number of failed aggregation queries by kind",
		}, []string{"kind"}),

		MaterializerRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "promptlens_session_length_materializations_total",
			Help: "Total number of session length materialization runs",
		}),

		TasksIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "promptlens_tasks_ingested_total",
			Help: "Total number of tasks ingested",
		}),

		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "promptlens_events_ingested_total",
			Help: "Total number of events ingested",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordAggregation records a completed aggregation query
func (m *Metrics) RecordAggregation(kind string, seconds float64) {
	m.AggregationsRun.WithLabelValues(kind).Inc()
	m.AggregationLatency.Observe(seconds)
}

// RecordAggregationError records a failed aggregation query
func (m *Metrics) RecordAggregationError(kind string) {
	m.AggregationErrors.WithLabelValues(kind).Inc()
}
