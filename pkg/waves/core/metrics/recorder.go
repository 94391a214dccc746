// Package metrics declares the metric and tracing ports used by the job runner.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// Outcome labels of adaptor calls and advance attempts.
const (
	OutcomeSuccess      = "success"
	OutcomeRetry        = "retry"
	OutcomeInconsistent = "inconsistent"
	OutcomeError        = "error"
	OutcomeFatal        = "fatal"
)

// MetricRecorder is an abstract interface for recording job execution metrics.
//
// This keeps the runner independent of the metrics backend (e.g. Prometheus).
type MetricRecorder interface {
	// RecordTransition counts an accepted status transition.
	RecordTransition(ctx context.Context, from, to model.JobStatus)

	// RecordAdaptorCall records the outcome and duration of one adaptor operation.
	//
	// kind: The adaptor kind.
	// op: The operation name (prepare, run, cancel, poll, fetch_results, run_details).
	// outcome: One of the Outcome constants.
	RecordAdaptorCall(ctx context.Context, kind, op, outcome string, d time.Duration)

	// RecordRetry counts an absorbed recoverable failure.
	RecordRetry(ctx context.Context, kind, op string)

	// RecordAdvance records a whole Advance call, claim and persistence included.
	RecordAdvance(ctx context.Context, op, outcome string, d time.Duration)
}

// Tracer abstracts distributed tracing.
type Tracer interface {
	// StartSpan starts a span and returns the context carrying it and the
	// function ending it.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())

	// RecordError records an error on the current span.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
