// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smukkama/fleet-analytics/internal/model"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	ComputationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_computation_duration_seconds",
		Help:    "Duration of analytics computations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"computation"})

	ComputationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_computation_errors_total",
		Help: "Failed analytics computations by error kind",
	}, []string{"computation", "kind"})

	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_anomalies_detected_total",
		Help: "Total number of anomalous rows detected",
	}, []string{"source"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_cache_lookups_total",
		Help: "Result cache lookups by outcome",
	}, []string{"result"})

	RollupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_rollup_runs_total",
		Help: "Scheduled rollups by period and outcome",
	}, []string{"period", "status"})

	PoolTaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_worker_task_duration_seconds",
		Help:    "Duration of tasks run on the worker pool",
		Buckets: prometheus.DefBuckets,
	})
)

// ErrorKind labels an error for ComputationErrors
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrDataProcessing):
		return "data_processing"
	default:
		return "internal"
	}
}

// ObserveComputation records the duration and outcome of one computation
func ObserveComputation(name string, start time.Time, err error) {
	ComputationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		ComputationErrors.WithLabelValues(name, ErrorKind(err)).Inc()
	}
}

// ObservePoolTask matches workerpool.Observer
func ObservePoolTask(d time.Duration, _ error) {
	PoolTaskDuration.Observe(d.Seconds())
}
