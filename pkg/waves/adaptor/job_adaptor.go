package adaptor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
	"github.com/tigerroll/waves/pkg/waves/support/util/serialization"
)

// JobAdaptor is the concrete Adaptor. It guards each operation with the state
// machine, manages the connection flag and delegates the work to its Backend.
// A JobAdaptor and the connection it opens belong to one caller at a time.
type JobAdaptor struct {
	kind    Kind
	name    string
	config  Config
	backend Backend
	states  StatusTable
	machine *statemachine.Machine

	mu        sync.Mutex
	connected bool
}

// NewJobAdaptor assembles an adaptor.
func NewJobAdaptor(kind Kind, name string, cfg Config, backend Backend, states StatusTable, machine *statemachine.Machine) *JobAdaptor {
	if machine == nil {
		machine = statemachine.New()
	}
	return &JobAdaptor{
		kind:    kind,
		name:    name,
		config:  cfg,
		backend: backend,
		states:  states,
		machine: machine,
	}
}

func (a *JobAdaptor) Kind() Kind       { return a.kind }
func (a *JobAdaptor) Name() string     { return a.name }
func (a *JobAdaptor) Params() Config   { return a.config }
func (a *JobAdaptor) Backend() Backend { return a.backend }

func (a *JobAdaptor) module() string { return string(a.kind) }

// Ready lists the required parameters that are not set.
func (a *JobAdaptor) Ready() (bool, []string) {
	var missing []string
	for _, p := range a.config.InitParams() {
		if p.Required && strings.TrimSpace(p.Value) == "" {
			missing = append(missing, p.Name)
		}
	}
	return len(missing) == 0, missing
}

func (a *JobAdaptor) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *JobAdaptor) Connect(ctx context.Context) error {
	if ok, missing := a.Ready(); !ok {
		return exception.NewAdaptorNotReady(a.module(), missing)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	if err := a.backend.Open(ctx); err != nil {
		if exception.IsAdaptorException(err) {
			return err
		}
		return exception.NewAdaptorConnectError(a.module(), fmt.Sprintf("unable to connect to %s", a.config.ConnexionString()), err)
	}
	a.connected = true
	logger.Debugf("Adaptor %s connected to %s", a.kind, a.config.ConnexionString())
	return nil
}

func (a *JobAdaptor) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	if err := a.backend.Close(ctx); err != nil {
		logger.Warnf("Adaptor %s teardown failed: %v", a.kind, err)
		return exception.NewAdaptorError(a.module(), "disconnect failed", err)
	}
	return nil
}

func (a *JobAdaptor) Available(ctx context.Context) bool {
	if ok, _ := a.Ready(); !ok {
		return false
	}
	if err := a.backend.Available(ctx); err != nil {
		logger.Debugf("Adaptor %s not available: %v", a.kind, err)
		return false
	}
	return true
}

func (a *JobAdaptor) TestConnection(ctx context.Context) (bool, error) {
	if err := a.Connect(ctx); err != nil {
		return false, err
	}
	return a.Connected(), nil
}

func (a *JobAdaptor) Prepare(ctx context.Context, job *model.Job) error {
	if err := statemachine.Guard(job, statemachine.OpPrepare); err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}
	cmd, err := a.backend.Prepare(ctx, job)
	if err != nil {
		return a.classify(err, exception.KindJobPrepare, "job preparation failed")
	}
	job.CommandLine = cmd
	_, err = a.machine.Transition(ctx, job, model.StatusPrepared, "")
	return err
}

func (a *JobAdaptor) Run(ctx context.Context, job *model.Job) error {
	if err := statemachine.Guard(job, statemachine.OpRun); err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}
	remoteID, err := a.backend.Submit(ctx, job)
	if err != nil {
		return a.classify(err, exception.KindJobRun, "job submission failed")
	}
	job.RemoteJobID = remoteID
	logger.Infof("Job %s submitted on %s with remote id %s", job.Slug, a.config.ConnexionString(), remoteID)
	_, err = a.machine.Transition(ctx, job, model.StatusQueued, "")
	return err
}

func (a *JobAdaptor) Cancel(ctx context.Context, job *model.Job) error {
	if err := statemachine.Guard(job, statemachine.OpCancel); err != nil {
		return err
	}
	if job.RemoteJobID != "" {
		if err := a.Connect(ctx); err != nil {
			logger.Warnf("Cancel of job %s: connection failed, cancelling locally: %v", job.Slug, err)
		} else if err := a.backend.Cancel(ctx, job); err != nil {
			logger.Warnf("Cancel of job %s: remote cancellation failed: %v", job.Slug, err)
		}
	}
	_, err := a.machine.Transition(ctx, job, model.StatusCancelled, "")
	return err
}

func (a *JobAdaptor) PollStatus(ctx context.Context, job *model.Job) (model.JobStatus, error) {
	if err := statemachine.Guard(job, statemachine.OpPoll); err != nil {
		return job.Status, err
	}
	if err := a.Connect(ctx); err != nil {
		return job.Status, err
	}
	native, err := a.backend.Status(ctx, job)
	if err != nil {
		return job.Status, a.classify(err, exception.KindAdaptor, "status retrieval failed")
	}
	mapped := a.states.Map(native)
	logger.Debugf("Current remote state %s mapped to %s", native, mapped)
	return mapped, nil
}

func (a *JobAdaptor) FetchResults(ctx context.Context, job *model.Job) error {
	if err := statemachine.Guard(job, statemachine.OpFetchResults); err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}
	if err := a.backend.Results(ctx, job); err != nil {
		return a.classify(err, exception.KindAdaptor, "results retrieval failed")
	}
	job.ResultsAvailable = true
	return nil
}

func (a *JobAdaptor) FetchRunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	d, err := a.backend.RunDetails(ctx, job)
	if err != nil {
		return nil, a.classify(err, exception.KindAdaptor, "run details retrieval failed")
	}
	return d, nil
}

func (a *JobAdaptor) ConnexionString() string {
	return a.config.ConnexionString()
}

// DumpConfig renders the init params, "crypt" values masked.
func (a *JobAdaptor) DumpConfig() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dump config for %s\n", a.name)
	b.WriteString("Init params:\n")
	for _, p := range a.config.InitParams() {
		v := p.Value
		if serialization.IsSensitive(p.Name) {
			v = serialization.MaskValue(v)
		}
		fmt.Fprintf(&b, " - %s : %s\n", p.Name, v)
	}
	if d, ok := a.backend.(Describer); ok {
		b.WriteString(d.Describe())
	}
	return b.String()
}

// classify keeps WAVES errors as they are and wraps anything else in the
// adaptor exception of the given kind.
func (a *JobAdaptor) classify(err error, kind exception.Kind, message string) error {
	if _, ok := exception.AsWavesError(err); ok {
		return err
	}
	switch kind {
	case exception.KindJobPrepare:
		return exception.NewJobPrepareError(a.module(), message, err)
	case exception.KindJobRun:
		return exception.NewJobRunError(a.module(), message, err)
	default:
		return exception.NewAdaptorError(a.module(), message, err)
	}
}

var _ Adaptor = (*JobAdaptor)(nil)
