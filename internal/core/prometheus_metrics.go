package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation counters and latency histograms
// through a prometheus.Registerer. The binary serves the registry on /metrics.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors on reg. A nil
// registerer falls back to the default global registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "communitycore_operations_total",
		Help: "Count of service operations by result status.",
	}, []string{"operation", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "communitycore_operation_duration_seconds",
		Help:    "Latency of service operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	if err := reg.Register(operations); err != nil {
		return nil, err
	}
	if err := reg.Register(durations); err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{operations: operations, durations: durations}, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
