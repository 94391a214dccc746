// Package runner drives jobs through prepare, run, poll and results using the
// adaptor each job is bound to, applying the retry policy and persisting the
// job after every attempt.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/core/job/retry"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/metrics"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const module = "runner"

// DefaultLeaseTTL bounds how long a crashed worker blocks a job.
const DefaultLeaseTTL = 5 * time.Minute

// AdaptorLoader builds adaptors and rebinds jobs to their adaptor snapshot.
type AdaptorLoader interface {
	Load(kind string, params map[string]interface{}) (adaptor.Adaptor, error)
	Serialize(a adaptor.Adaptor) (model.AdaptorBinding, error)
	Unserialize(b model.AdaptorBinding) (adaptor.Adaptor, error)
}

// Definition is a named execution target: an adaptor kind and its parameters.
type Definition struct {
	Adaptor string                 `yaml:"adaptor" mapstructure:"adaptor"`
	Params  map[string]interface{} `yaml:"params" mapstructure:"params"`
}

// JobRunner orchestrates job lifecycles. It is safe for concurrent use on
// different jobs; concurrent Advance calls on one job are serialized by the
// repository lease.
type JobRunner struct {
	repo     repository.JobRepository
	loader   AdaptorLoader
	machine  *statemachine.Machine
	policy   retry.RetryPolicy
	workdir  *workdir.Manager
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer

	owner       string
	leaseTTL    time.Duration
	definitions map[string]Definition
	now         func() time.Time
}

// Option customizes a JobRunner.
type Option func(*JobRunner)

// WithLeaseTTL sets the job lease duration.
func WithLeaseTTL(d time.Duration) Option {
	return func(r *JobRunner) {
		if d > 0 {
			r.leaseTTL = d
		}
	}
}

// WithOwner sets the lease owner name; a random one is used by default.
func WithOwner(owner string) Option {
	return func(r *JobRunner) {
		if owner != "" {
			r.owner = owner
		}
	}
}

// WithDefinitions registers the named execution targets used by CreateJob.
func WithDefinitions(defs map[string]Definition) Option {
	return func(r *JobRunner) {
		for name, d := range defs {
			r.definitions[name] = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *JobRunner) { r.now = now }
}

// NewJobRunner creates a JobRunner.
//
// Parameters:
//
//	repo: The job repository.
//	loader: Resolves the adaptor bound to a job.
//	machine: The state machine shared with the adaptors.
//	policy: The retry budget applied to recoverable adaptor failures.
//	wd: The working directory manager.
//	recorder: The metric recorder; nil disables metrics.
//	tracer: The tracer; nil disables tracing.
func NewJobRunner(
	repo repository.JobRepository,
	loader AdaptorLoader,
	machine *statemachine.Machine,
	policy retry.RetryPolicy,
	wd *workdir.Manager,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
	opts ...Option,
) *JobRunner {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	r := &JobRunner{
		repo:        repo,
		loader:      loader,
		machine:     machine,
		policy:      policy,
		workdir:     wd,
		recorder:    recorder,
		tracer:      tracer,
		owner:       "runner-" + uuid.NewString(),
		leaseTTL:    DefaultLeaseTTL,
		definitions: make(map[string]Definition),
		now:         time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the retry policy.
func (r *JobRunner) Policy() retry.RetryPolicy { return r.policy }

// Owner returns the lease owner prefix of this runner.
func (r *JobRunner) Owner() string { return r.owner }

// Advance applies op to the job identified by jobID and returns the job as
// persisted afterwards.
//
// The job is claimed first; when another worker holds it, or the claim loses
// a concurrent update, Advance fails with JobInconsistentState and nothing
// changes. An op whose precondition does not hold fails the same way.
func (r *JobRunner) Advance(ctx context.Context, jobID string, op statemachine.Operation) (job *model.Job, err error) {
	start := r.now()
	ctx, end := r.tracer.StartSpan(ctx, "waves.job.advance", map[string]interface{}{"job.id": jobID, "operation": string(op)})
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err == nil:
		case exception.IsInconsistentState(err):
			outcome = metrics.OutcomeInconsistent
		default:
			outcome = metrics.OutcomeError
			r.tracer.RecordError(ctx, module, err)
		}
		r.recorder.RecordAdvance(ctx, string(op), outcome, r.now().Sub(start))
		end()
	}()

	if !isAdvanceOperation(op) {
		return nil, exception.NewWavesError(module, fmt.Sprintf("operation %q cannot be advanced", op), nil)
	}

	job, err = r.claim(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := r.release(ctx, job); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err = statemachine.Guard(job, op); err != nil {
		logger.Debugf("Job %s: %s refused: %v", job.Slug, op, err)
		return job, err
	}

	ad, err := r.resolveAdaptor(ctx, job)
	if err != nil {
		return job, err
	}
	if ad != nil {
		defer func() {
			if derr := ad.Disconnect(ctx); derr != nil {
				logger.Warnf("Job %s: %v", job.Slug, derr)
			}
		}()
	}

	switch op {
	case statemachine.OpPrepare:
		err = r.RunPrepare(ctx, job, ad)
	case statemachine.OpRun:
		err = r.RunLaunch(ctx, job, ad)
	case statemachine.OpCancel:
		err = r.RunCancel(ctx, job, ad)
	case statemachine.OpPoll:
		_, err = r.RunStatus(ctx, job, ad)
	case statemachine.OpFetchResults:
		err = r.RunResults(ctx, job, ad)
	}
	return job, err
}

func isAdvanceOperation(op statemachine.Operation) bool {
	for _, o := range statemachine.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// claim leases the job. Every claim uses its own owner token so that two
// workers of the same runner exclude each other too.
func (r *JobRunner) claim(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := r.repo.ClaimJob(ctx, jobID, r.owner+"/"+uuid.NewString()[:8], r.leaseTTL)
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, repository.ErrJobLeased), exception.IsOptimisticLockingFailure(err):
		return nil, exception.NewJobInconsistentState(module, "claimed by another worker", "an unclaimed job")
	default:
		return nil, err
	}
}

// release drops the lease and persists the job.
func (r *JobRunner) release(ctx context.Context, job *model.Job) error {
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	return r.save(ctx, job)
}

func (r *JobRunner) save(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = r.now()
	if err := r.repo.UpdateJob(ctx, job); err != nil {
		logger.Errorf("Job %s: persistence failed: %v", job.Slug, err)
		return err
	}
	return nil
}

// resolveAdaptor rebinds the job to its adaptor snapshot. A job without a
// binding yields a nil adaptor; a binding that cannot be loaded sends the job
// to ERROR.
func (r *JobRunner) resolveAdaptor(ctx context.Context, job *model.Job) (adaptor.Adaptor, error) {
	if job.Adaptor == nil {
		return nil, nil
	}
	ad, err := r.loader.Unserialize(*job.Adaptor)
	if err != nil {
		r.Error(ctx, job, "Adaptor load failed: "+exception.ExtractErrorMessage(err))
		return nil, err
	}
	return ad, nil
}

// JobRequest describes a job submission.
type JobRequest struct {
	Title   string
	Service string
	// Runner names the execution target the job is bound to.
	Runner  string
	Inputs  []model.JobInput
	Outputs []model.JobOutput
	Notify  bool
	EmailTo string
}

// CreateJob persists a new job in CREATED state bound to a snapshot of the
// named runner adaptor, with its working directory and empty capture files.
func (r *JobRunner) CreateJob(ctx context.Context, req JobRequest) (*model.Job, error) {
	def, ok := r.definitions[req.Runner]
	if !ok {
		return nil, exception.NewAdaptorLoadError(module, fmt.Sprintf("unknown runner %q", req.Runner), adaptor.ErrAdaptorNotFound)
	}
	ad, err := r.loader.Load(def.Adaptor, def.Params)
	if err != nil {
		return nil, err
	}
	binding, err := r.loader.Serialize(ad)
	if err != nil {
		return nil, err
	}

	job := model.NewJob(req.Title, req.Service)
	job.CreatedAt = r.now()
	job.UpdatedAt = job.CreatedAt
	job.Adaptor = &binding
	job.Inputs = append([]model.JobInput(nil), req.Inputs...)
	job.Outputs = append([]model.JobOutput{
		{Name: "Standard output", Value: workdir.StdoutFile, Optional: true},
		{Name: "Standard error", Value: workdir.StderrFile, Optional: true},
	}, req.Outputs...)
	job.Notify = req.Notify
	job.EmailTo = req.EmailTo

	if err := r.workdir.MakeJobDirs(job); err != nil {
		return nil, err
	}
	if err := r.workdir.CreateDefaultOutputs(job); err != nil {
		return nil, err
	}
	r.machine.Init(job)
	if err := r.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Infof("Job %s created (%s) on runner %s [%s]", job.Slug, job.Title, req.Runner, def.Adaptor)
	return job, nil
}

// ReRun resets a job to CREATED so it runs again with the same inputs.
func (r *JobRunner) ReRun(ctx context.Context, jobID string) (job *model.Job, err error) {
	job, err = r.claim(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := r.release(ctx, job); rerr != nil && err == nil {
			err = rerr
		}
	}()
	if err = r.machine.Reset(ctx, job); err != nil {
		return job, err
	}
	job.CommandLine = ""
	job.RemoteJobID = ""
	job.NbRetry = 0
	job.ExitCode = 0
	job.ResultsAvailable = false
	if err = r.workdir.ResetOutputs(job); err != nil {
		return job, err
	}
	logger.Infof("Job %s marked for re-run", job.Slug)
	return job, nil
}

// PendingJobs lists jobs with a pending operation, oldest first.
func (r *JobRunner) PendingJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	return r.repo.FindJobsByStatus(ctx, limit, model.PendingStatuses...)
}
