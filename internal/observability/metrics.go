package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_pipeline_stage_duration_seconds",
			Help:    "Duration of each question pipeline stage.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	pipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_pipeline_failures_total",
			Help: "Total number of failed questions by failure kind.",
		},
		[]string{"kind"},
	)

	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_generation_attempts_total",
			Help: "Model calls made while generating SQL, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	schemaRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_schema_refresh_total",
			Help: "Schema description loads by result.",
		},
		[]string{"result"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_auth_failures_total",
			Help: "Rejected API requests by reason.",
		},
		[]string{"reason"},
	)

	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_rows_returned",
			Help:    "Rows returned per executed statement.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		pipelineStageDurationSeconds,
		pipelineFailuresTotal,
		generationAttemptsTotal,
		schemaRefreshTotal,
		authFailuresTotal,
		queryRowsReturned,
	)
}

func ObservePipelineStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementPipelineFailure(kind string) {
	pipelineFailuresTotal.WithLabelValues(kind).Inc()
}

func IncrementGenerationAttempt(provider, outcome string) {
	generationAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

func IncrementSchemaRefresh(result string) {
	schemaRefreshTotal.WithLabelValues(result).Inc()
}

func IncrementAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRowsReturned.Observe(float64(rows))
}
