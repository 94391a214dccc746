package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// NoOpMetricRecorder is used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

func NewNoOpMetricRecorder() MetricRecorder { return &NoOpMetricRecorder{} }

func (r *NoOpMetricRecorder) RecordTransition(context.Context, model.JobStatus, model.JobStatus) {}
func (r *NoOpMetricRecorder) RecordAdaptorCall(context.Context, string, string, string, time.Duration) {
}
func (r *NoOpMetricRecorder) RecordRetry(context.Context, string, string) {}
func (r *NoOpMetricRecorder) RecordAdvance(context.Context, string, string, time.Duration) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

func NewNoOpTracer() Tracer { return &NoOpTracer{} }

func (t *NoOpTracer) StartSpan(ctx context.Context, _ string, _ map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error) {}

func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
