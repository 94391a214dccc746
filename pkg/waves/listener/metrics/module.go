package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/core/metrics"
)

// NewAsyncTransitionRecorderProvider ties the worker to the application lifecycle.
func NewAsyncTransitionRecorderProvider(lc fx.Lifecycle, rec metrics.MetricRecorder) *AsyncTransitionRecorder {
	r := NewAsyncTransitionRecorder(0, rec)
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		r.Close()
		return nil
	}})
	return r
}

var Module = fx.Options(
	fx.Provide(NewAsyncTransitionRecorderProvider),
)
