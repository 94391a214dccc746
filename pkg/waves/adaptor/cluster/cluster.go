// Package cluster submits jobs to a batch scheduler (Grid Engine or SLURM),
// locally or through an SSH connection to a submission host.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
	"github.com/tigerroll/waves/pkg/waves/adaptor/workspace"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// ParamsVersion is the schema version of Params in adaptor bindings.
const ParamsVersion = 1

// Params configures the cluster adaptors.
type Params struct {
	Command   string `json:"command"`
	Queue     string `json:"queue"`
	Scheduler string `json:"scheduler"`
	transport.Connection
}

func (p *Params) InitParams() []adaptor.InitParam {
	params := []adaptor.InitParam{
		{Name: "command", Value: p.Command, Required: true},
		{Name: "queue", Value: p.Queue, Required: true},
		{Name: "scheduler", Value: p.Scheduler, Required: true},
	}
	return append(params, p.Connection.InitParams()...)
}

func (p *Params) ConnexionString() string { return p.Connection.ConnexionString() }

// Backend submits the wrapper script to the scheduler.
type Backend struct {
	params    *Params
	scheduler Scheduler
	transport transport.Transport
	ws        workspace.Workspace
}

func NewBackend(p *Params, s Scheduler, tr transport.Transport) *Backend {
	return &Backend{
		params:    p,
		scheduler: s,
		transport: tr,
		ws:        workspace.Workspace{Transport: tr, Base: p.RemoteDir},
	}
}

func (b *Backend) Open(ctx context.Context) error { return b.transport.Open(ctx) }

func (b *Backend) Close(_ context.Context) error { return b.transport.Close() }

func (b *Backend) Available(ctx context.Context) error {
	if err := b.transport.Open(ctx); err != nil {
		return err
	}
	res, err := b.transport.Exec(ctx, "command -v "+b.scheduler.Binary())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s not found on %s", b.scheduler.Binary(), b.params.ConnexionString())
	}
	return nil
}

func (b *Backend) Prepare(ctx context.Context, job *model.Job) (string, error) {
	cmdline, err := command.Build(b.params.Command, job.Inputs)
	if err != nil {
		return "", err
	}
	if err := b.ws.Stage(ctx, job, cmdline); err != nil {
		return "", err
	}
	return cmdline, nil
}

func (b *Backend) Submit(ctx context.Context, job *model.Job) (string, error) {
	cmd := fmt.Sprintf("cd %s && %s", command.Quote(b.ws.Dir(job)),
		b.scheduler.SubmitCommand(workspace.ScriptFile, "waves_"+job.Slug, b.params.Queue))
	res, err := b.transport.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s submission failed: exit %d: %s", b.scheduler.Name(), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return b.scheduler.ParseSubmit(res.Stdout)
}

func (b *Backend) Cancel(ctx context.Context, job *model.Job) error {
	res, err := b.transport.Exec(ctx, b.scheduler.CancelCommand(job.RemoteJobID))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s cancel failed: %s", b.scheduler.Name(), strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Status asks the scheduler first. Once the job left the queue the exit code
// file decides between "done" and "failed".
func (b *Backend) Status(ctx context.Context, job *model.Job) (string, error) {
	res, err := b.transport.Exec(ctx, b.scheduler.StatusCommand(job.RemoteJobID))
	if err != nil {
		return "", err
	}
	if native := b.scheduler.ParseStatus(res.Stdout); native != "" {
		return native, nil
	}
	m, err := b.ws.ReadMarkers(ctx, job)
	if err != nil {
		return "", err
	}
	switch {
	case !m.Exited:
		logger.Debugf("Job %s (%s) not in %s queue and no exit code yet", job.Slug, job.RemoteJobID, b.scheduler.Name())
		return "", nil
	case m.ExitCode == 0:
		return "done", nil
	default:
		return "failed", nil
	}
}

func (b *Backend) Results(ctx context.Context, job *model.Job) error {
	return b.ws.Collect(ctx, job)
}

func (b *Backend) RunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	d, err := b.ws.Details(ctx, job)
	if err != nil {
		return nil, err
	}
	d.Extra = fmt.Sprintf("scheduler=%s queue=%s", b.scheduler.Name(), b.params.Queue)
	return d, nil
}

func (b *Backend) Describe() string {
	return fmt.Sprintf("Scheduler: %s\nQueue: %s\n", b.scheduler.Name(), b.params.Queue)
}

// Register adds the cluster kinds to r.
func Register(r *adaptor.Registry) {
	for _, k := range []struct {
		kind  adaptor.Kind
		label string
		conn  func() transport.Connection
	}{
		{adaptor.KindLocalCluster, "Local cluster", transport.LocalConnection},
		{adaptor.KindSSHCluster, "SSH cluster (user/password)", func() transport.Connection { return transport.SSHConnection(transport.ModePassword) }},
		{adaptor.KindSSHKeyCluster, "SSH cluster (private key)", func() transport.Connection { return transport.SSHConnection(transport.ModeKey) }},
	} {
		k := k
		r.Register(adaptor.Factory{
			Kind:    k.kind,
			Version: ParamsVersion,
			Label:   k.label,
			NewParams: func() adaptor.Config {
				return &Params{Queue: "all.q", Scheduler: SchedulerSGE, Connection: k.conn()}
			},
			Build: func(cfg adaptor.Config, machine *statemachine.Machine) (adaptor.Adaptor, error) {
				p, ok := cfg.(*Params)
				if !ok {
					return nil, fmt.Errorf("unexpected parameters %T", cfg)
				}
				s, err := SchedulerFor(p.Scheduler)
				if err != nil {
					return nil, err
				}
				tr, err := transport.New(p.Connection)
				if err != nil {
					return nil, err
				}
				return adaptor.NewJobAdaptor(k.kind, k.label, p, NewBackend(p, s, tr), s.States(), machine), nil
			},
		})
	}
}
