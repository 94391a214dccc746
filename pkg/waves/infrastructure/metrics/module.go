package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/core/config"
	metrics "github.com/tigerroll/waves/pkg/waves/core/metrics"
)

// NewTracerProvider builds the tracer from the observability section and
// shuts it down with the application.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*OpenTelemetryTracer, error) {
	o := cfg.Waves.Observability
	t, err := NewOpenTelemetryTracer(context.Background(), TracerSettings{
		ServiceName:  o.ServiceName,
		OtlpEndpoint: o.OtlpEndpoint,
		Insecure:     true,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: t.Shutdown})
	return t, nil
}

// Module replaces the no-op ports of the core metrics module with the
// PrometheusRecorder and the OpenTelemetryTracer.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder, NewTracerProvider),
	fx.Decorate(
		func(_ metrics.MetricRecorder, r *PrometheusRecorder) metrics.MetricRecorder { return r },
		func(_ metrics.Tracer, t *OpenTelemetryTracer) metrics.Tracer { return t },
	),
)
