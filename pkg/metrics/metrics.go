// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks resolved records by outcome
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of resolved records by entity type and outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// ResolutionDuration tracks end-to-end resolution latency in seconds
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of record resolution in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"entity_type"},
	)

	// ResolutionErrors tracks failed resolutions by error code
	ResolutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "Total number of failed resolutions by error code",
		},
		[]string{"code"},
	)

	// ConflictRetries tracks retries after a concurrent write conflict
	ConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "conflict_retries_total",
			Help:      "Total number of resolutions retried after a concurrent write conflict",
		},
	)

	// CandidatesGenerated tracks candidate set sizes
	CandidatesGenerated = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "candidates",
			Help:      "Number of candidates generated per record",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"entity_type"},
	)

	// ReviewsTotal tracks reviewer decisions by resolution
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "review",
			Name:      "resolutions_total",
			Help:      "Total number of reviewer resolutions by resolution",
		},
		[]string{"resolution"},
	)

	// BatchRecordsTotal tracks records processed by batch runs
	BatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Total number of records processed by batch runs by status",
		},
		[]string{"status"},
	)

	// BatchRecordsInFlight tracks records currently being resolved by batch runs
	BatchRecordsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "records_in_flight",
			Help:      "Number of batch records currently being resolved",
		},
	)

	// EventsPublished tracks events handed to observers
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of ledger events by type and status",
		},
		[]string{"event_type", "status"},
	)
)

// RecordResolution records a successful resolution
func RecordResolution(entityType, outcome string, durationSeconds float64) {
	ResolutionsTotal.WithLabelValues(entityType, outcome).Inc()
	ResolutionDuration.WithLabelValues(entityType).Observe(durationSeconds)
}

// RecordResolutionError records a failed resolution
func RecordResolutionError(code string) {
	ResolutionErrors.WithLabelValues(code).Inc()
}

// RecordCandidates records the size of a candidate set
func RecordCandidates(entityType string, count int) {
	CandidatesGenerated.WithLabelValues(entityType).Observe(float64(count))
}

// RecordReview records a reviewer resolution
func RecordReview(resolution string) {
	ReviewsTotal.WithLabelValues(resolution).Inc()
}

// RecordBatchRecord records one batch record outcome
func RecordBatchRecord(status string) {
	BatchRecordsTotal.WithLabelValues(status).Inc()
}

// RecordEvent records one event delivery
func RecordEvent(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}
