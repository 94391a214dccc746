package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	metrics "github.com/tigerroll/waves/pkg/waves/core/metrics"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	adaptorCalls    *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	advanceDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry, which
// also carries the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waves_job_transitions_total",
			Help: "Accepted job status transitions.",
		}, []string{"from", "to"}),
		adaptorCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waves_adaptor_call_duration_seconds",
			Help:    "Duration of adaptor operations by kind, operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "op", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waves_job_retries_total",
			Help: "Recoverable adaptor failures absorbed by the retry budget.",
		}, []string{"kind", "op"}),
		advanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waves_advance_duration_seconds",
			Help:    "Duration of whole advance calls, claim and persistence included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
	}
	registry.MustRegister(r.transitions, r.adaptorCalls, r.retries, r.advanceDuration)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordTransition(ctx context.Context, from, to model.JobStatus) {
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (r *PrometheusRecorder) RecordAdaptorCall(ctx context.Context, kind, op, outcome string, d time.Duration) {
	r.adaptorCalls.WithLabelValues(kind, op, outcome).Observe(d.Seconds())
	logger.Debugf("Metrics: adaptor %s %s -> %s in %.3fs", kind, op, outcome, d.Seconds())
}

func (r *PrometheusRecorder) RecordRetry(ctx context.Context, kind, op string) {
	r.retries.WithLabelValues(kind, op).Inc()
}

func (r *PrometheusRecorder) RecordAdvance(ctx context.Context, op, outcome string, d time.Duration) {
	r.advanceDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
