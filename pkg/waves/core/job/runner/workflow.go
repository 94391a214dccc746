package runner

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/metrics"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// CancelledMessage is the history message of a cancellation.
const CancelledMessage = "Job cancelled"

// runAction calls one adaptor operation and turns its failure into job state:
//
//   - success resets the retry counter,
//   - a recoverable adaptor failure is absorbed as a retry until the budget
//     is spent, then the job goes to ERROR and the failure propagates,
//   - an inconsistent state propagates untouched,
//   - other WAVES errors send the job to ERROR and propagate,
//   - anything else is fatal: ERROR, logged as such, and propagated.
//
// A job already in a final status keeps it: the failure is only propagated.
// The job is persisted whatever happens. done reports whether the adaptor
// call succeeded.
func (r *JobRunner) runAction(ctx context.Context, job *model.Job, ad adaptor.Adaptor, op statemachine.Operation, call func(context.Context) error) (done bool, err error) {
	defer func() {
		if serr := r.save(ctx, job); serr != nil {
			err = multierror.Append(err, serr).ErrorOrNil()
		}
	}()

	if ad == nil {
		err = exception.NewWavesError(module, "No Adaptor, impossible to run", nil)
		r.Error(ctx, job, exception.ExtractErrorMessage(err))
		return false, err
	}

	kind := string(ad.Kind())
	spanCtx, end := r.tracer.StartSpan(ctx, "waves.adaptor."+string(op), map[string]interface{}{
		"job.slug":     job.Slug,
		"adaptor.kind": kind,
	})
	final := job.Status.IsFinal()
	start := r.now()
	err = call(spanCtx)
	elapsed := r.now().Sub(start)
	end()

	switch {
	case err == nil:
		job.NbRetry = 0
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeSuccess, elapsed)
		return true, nil

	case exception.IsInconsistentState(err):
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeInconsistent, elapsed)
		return false, err

	case final:
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeError, elapsed)
		r.tracer.RecordError(ctx, module, err)
		logger.Warnf("Job %s: %s failed, keeping status %s: %v", job.Slug, op, job.Status, err)
		return false, err

	case r.policy.ShouldRetry(err):
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeRetry, elapsed)
		r.recorder.RecordRetry(ctx, kind, string(op))
		if r.Retry(ctx, job, exception.ExtractErrorMessage(err)) {
			return false, nil
		}
		return false, err

	case exception.IsWavesError(err):
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeError, elapsed)
		r.tracer.RecordError(ctx, module, err)
		r.Error(ctx, job, exception.ExtractErrorMessage(err))
		return false, err

	default:
		r.recorder.RecordAdaptorCall(ctx, kind, string(op), metrics.OutcomeFatal, elapsed)
		r.tracer.RecordError(ctx, module, err)
		r.FatalError(ctx, job, err)
		return false, err
	}
}

// Retry records a recoverable failure. It returns false when the budget is
// spent and the job was sent to ERROR instead.
func (r *JobRunner) Retry(ctx context.Context, job *model.Job, reason string) bool {
	if r.policy.Exhausted(job.NbRetry) {
		logger.Warnf("Job %s: retry budget of %d exhausted", job.Slug, r.policy.GetMaxAttempts())
		r.Error(ctx, job, reason)
		return false
	}
	job.NbRetry++
	if reason == "" {
		reason = job.Status.String()
	}
	r.machine.Annotate(job, "[Retry] "+reason)
	logger.Infof("Job %s: retry %d/%d: %s", job.Slug, job.NbRetry, r.policy.GetMaxAttempts(), reason)
	return true
}

// Error appends the reason to job.stderr and moves the job to ERROR. A job
// in a final status is left as it is.
func (r *JobRunner) Error(ctx context.Context, job *model.Job, reason string) {
	if job.Status.IsFinal() {
		logger.Warnf("Job %s: %s, keeping status %s", job.Slug, reason, job.Status)
		return
	}
	if err := r.workdir.AppendStderr(job, "Job error: "+reason); err != nil {
		logger.Warnf("Job %s: unable to write stderr: %v", job.Slug, err)
	}
	if _, err := r.machine.Transition(ctx, job, model.StatusError, "[Error] "+reason); err != nil {
		logger.Errorf("Job %s: %v", job.Slug, err)
	}
}

// FatalError handles an unexpected failure.
func (r *JobRunner) FatalError(ctx context.Context, job *model.Job, err error) {
	logger.Fatalf("Job workflow fatal error: %v", err)
	r.Error(ctx, job, exception.ExtractErrorMessage(err))
}

// RunPrepare stages the job inputs and resolves its command line.
func (r *JobRunner) RunPrepare(ctx context.Context, job *model.Job, ad adaptor.Adaptor) error {
	_, err := r.runAction(ctx, job, ad, statemachine.OpPrepare, func(ctx context.Context) error {
		return ad.Prepare(ctx, job)
	})
	return err
}

// RunLaunch submits a prepared job.
func (r *JobRunner) RunLaunch(ctx context.Context, job *model.Job, ad adaptor.Adaptor) error {
	_, err := r.runAction(ctx, job, ad, statemachine.OpRun, func(ctx context.Context) error {
		return ad.Run(ctx, job)
	})
	return err
}

// RunCancel cancels the job locally whatever the backend answers.
func (r *JobRunner) RunCancel(ctx context.Context, job *model.Job, ad adaptor.Adaptor) error {
	_, err := r.runAction(ctx, job, ad, statemachine.OpCancel, func(ctx context.Context) error {
		if err := statemachine.Guard(job, statemachine.OpCancel); err != nil {
			return err
		}
		job.Message = CancelledMessage
		err := ad.Cancel(ctx, job)
		job.Message = ""
		return err
	})
	return err
}

// RunStatus polls the backend and applies the mapped status. COMPLETED chains
// into RunResults. UNDEFINED counts against the retry budget and, once it is
// spent, chains into RunCancel.
func (r *JobRunner) RunStatus(ctx context.Context, job *model.Job, ad adaptor.Adaptor) (model.JobStatus, error) {
	retries := job.NbRetry
	var mapped model.JobStatus
	done, err := r.runAction(ctx, job, ad, statemachine.OpPoll, func(ctx context.Context) error {
		var perr error
		mapped, perr = ad.PollStatus(ctx, job)
		return perr
	})
	if err != nil || !done {
		return job.Status, err
	}

	// A backend reporting a not yet submitted state for a submitted job.
	if mapped == model.StatusCreated || mapped == model.StatusPrepared {
		mapped = model.StatusQueued
	}
	if _, err := r.machine.Transition(ctx, job, mapped, ""); err != nil {
		return job.Status, multierror.Append(err, r.save(ctx, job)).ErrorOrNil()
	}
	logger.Debugf("Job %s current state: %s", job.Slug, job.Status)

	switch job.Status {
	case model.StatusCompleted:
		if err := r.save(ctx, job); err != nil {
			return job.Status, err
		}
		if err := r.RunResults(ctx, job, ad); err != nil {
			return job.Status, err
		}
	case model.StatusUndefined:
		job.NbRetry = retries
		if r.policy.Exhausted(retries) {
			logger.Warnf("Job %s: remote status still undefined after %d retries, cancelling", job.Slug, retries)
			if err := r.RunCancel(ctx, job, ad); err != nil {
				return job.Status, err
			}
			return job.Status, nil
		}
		r.Retry(ctx, job, "Remote status undefined")
	}
	return job.Status, r.save(ctx, job)
}

// RunResults downloads the results and run details, then ends the job in
// WARNING when job.stderr is not empty and in TERMINATED otherwise.
func (r *JobRunner) RunResults(ctx context.Context, job *model.Job, ad adaptor.Adaptor) error {
	done, err := r.runAction(ctx, job, ad, statemachine.OpFetchResults, func(ctx context.Context) error {
		return ad.FetchResults(ctx, job)
	})
	if err != nil || !done {
		return err
	}
	details := r.RetrieveRunDetails(ctx, job, ad)
	if details != nil && details.ExitCode != 0 {
		job.ExitCode = details.ExitCode
	}
	if job.Status.IsFinal() {
		return r.save(ctx, job)
	}

	size, err := r.workdir.StderrSize(job)
	if err != nil {
		logger.Warnf("Job %s: unable to read stderr: %v", job.Slug, err)
	}
	logger.Debugf("Results %s exit code %d stderr size %d", job.Status, job.ExitCode, size)
	if size > 0 {
		logger.Errorf("Error found for job %s (exit code %d)", job.Slug, job.ExitCode)
		_, err = r.machine.Transition(ctx, job, model.StatusWarning, "job.stderr is not empty")
	} else {
		_, err = r.machine.Transition(ctx, job, model.StatusTerminated, "Data retrieved")
	}
	return multierror.Append(err, r.save(ctx, job)).ErrorOrNil()
}
