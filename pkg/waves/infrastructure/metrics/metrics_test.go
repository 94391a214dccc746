package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	r := metrics.NewPrometheusRecorder()
	ctx := context.Background()

	r.RecordTransition(ctx, model.StatusCreated, model.StatusPrepared)
	r.RecordTransition(ctx, model.StatusCreated, model.StatusPrepared)
	r.RecordRetry(ctx, "ssh-cluster", "run")
	r.RecordAdaptorCall(ctx, "ssh-cluster", "run", "retry", 2*time.Second)
	r.RecordAdvance(ctx, "run", "success", time.Second)

	n, err := testutil.GatherAndCount(r.GetRegistry(), "waves_job_transitions_total", "waves_job_retries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := r.GetRegistry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				values[f.GetName()] += float64(h.GetSampleCount())
			}
		}
	}
	assert.Equal(t, 2.0, values["waves_job_transitions_total"])
	assert.Equal(t, 1.0, values["waves_job_retries_total"])
	assert.Equal(t, 1.0, values["waves_adaptor_call_duration_seconds"])
	assert.Equal(t, 1.0, values["waves_advance_duration_seconds"])
}

func TestOpenTelemetryTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr, err := metrics.NewOpenTelemetryTracer(context.Background(),
		metrics.TracerSettings{ServiceName: "wavesd-test"},
		sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	ctx, end := tr.StartSpan(context.Background(), "advance", map[string]interface{}{
		"job.slug": "abc", "retry": 2, "status": model.StatusRunning,
	})
	tr.RecordEvent(ctx, "transition", map[string]interface{}{"to": "Prepared"})
	tr.RecordError(ctx, "runner", errors.New("boom"))
	end()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "advance", s.Name)
	assert.Len(t, s.Attributes, 3)
	assert.Len(t, s.Events, 2, "the event and the recorded exception")
	assert.Equal(t, "boom", s.Status.Description)
}
