// Package shell runs jobs as background shell processes, on this machine or on
// a host reached over SSH.
package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
	"github.com/tigerroll/waves/pkg/waves/adaptor/workspace"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
)

// ParamsVersion is the schema version of Params in adaptor bindings.
const ParamsVersion = 1

// Params configures the shell adaptors.
type Params struct {
	Command string `json:"command"`
	transport.Connection
}

func (p *Params) InitParams() []adaptor.InitParam {
	return append([]adaptor.InitParam{{Name: "command", Value: p.Command, Required: true}}, p.Connection.InitParams()...)
}

func (p *Params) ConnexionString() string { return p.Connection.ConnexionString() }

// Backend launches the wrapper script with nohup and tracks the process id.
type Backend struct {
	params    *Params
	transport transport.Transport
	ws        workspace.Workspace
}

// NewBackend creates a backend running over tr.
func NewBackend(p *Params, tr transport.Transport) *Backend {
	return &Backend{
		params:    p,
		transport: tr,
		ws:        workspace.Workspace{Transport: tr, Base: p.RemoteDir},
	}
}

func (b *Backend) Open(ctx context.Context) error { return b.transport.Open(ctx) }

func (b *Backend) Close(_ context.Context) error { return b.transport.Close() }

// Available checks that the command can be found on the execution host.
func (b *Backend) Available(ctx context.Context) error {
	if err := b.transport.Open(ctx); err != nil {
		return err
	}
	res, err := b.transport.Exec(ctx, "command -v "+command.Quote(b.params.Command))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("command %s not found", b.params.Command)
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

// Submit starts the wrapper in the background and returns its process id.
func (b *Backend) Submit(ctx context.Context, job *model.Job) (string, error) {
	dir := command.Quote(b.ws.Dir(job))
	cmd := fmt.Sprintf("cd %s && nohup /bin/sh %s > %s 2> %s < /dev/null & echo $!",
		dir, workspace.ScriptFile, workdir.StdoutFile, workdir.StderrFile)
	res, err := b.transport.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	pid := strings.TrimSpace(res.Stdout)
	if res.ExitCode != 0 || pid == "" {
		return "", fmt.Errorf("launch failed: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if _, err := strconv.Atoi(pid); err != nil {
		return "", fmt.Errorf("unexpected process id %q", pid)
	}
	return pid, nil
}

func (b *Backend) Cancel(ctx context.Context, job *model.Job) error {
	res, err := b.transport.Exec(ctx, "kill "+command.Quote(job.RemoteJobID))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kill %s: %s", job.RemoteJobID, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Status reports Done or Failed once the exit code file exists, Running while
// the process is alive and Unknown otherwise.
func (b *Backend) Status(ctx context.Context, job *model.Job) (string, error) {
	code := command.Quote(b.ws.Dir(job) + "/" + workspace.ExitCodeFile)
	cmd := fmt.Sprintf("if [ -f %[1]s ]; then echo exit $(cat %[1]s); elif kill -0 %[2]s 2>/dev/null; then echo running; elif [ -f %[1]s ]; then echo exit $(cat %[1]s); else echo unknown; fi",
		code, command.Quote(job.RemoteJobID))
	res, err := b.transport.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return nativeStatus(strings.TrimSpace(res.Stdout)), nil
}

func nativeStatus(out string) string {
	switch {
	case out == "running":
		return "Running"
	case out == "exit 0":
		return "Done"
	case strings.HasPrefix(out, "exit "):
		return "Failed"
	default:
		return "Unknown"
	}
}

func (b *Backend) Results(ctx context.Context, job *model.Job) error {
	return b.ws.Collect(ctx, job)
}

func (b *Backend) RunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	return b.ws.Details(ctx, job)
}

func (b *Backend) Describe() string {
	return fmt.Sprintf("Working directory: %s\n", b.params.RemoteDir)
}

// Register adds the shell kinds to r.
func Register(r *adaptor.Registry) {
	for _, k := range []struct {
		kind  adaptor.Kind
		label string
		conn  func() transport.Connection
	}{
		{adaptor.KindLocalShell, "Local shell", transport.LocalConnection},
		{adaptor.KindSSHShell, "SSH shell (user/password)", func() transport.Connection { return transport.SSHConnection(transport.ModePassword) }},
		{adaptor.KindSSHKeyShell, "SSH shell (private key)", func() transport.Connection { return transport.SSHConnection(transport.ModeKey) }},
	} {
		k := k
		r.Register(adaptor.Factory{
			Kind:    k.kind,
			Version: ParamsVersion,
			Label:   k.label,
			NewParams: func() adaptor.Config {
				return &Params{Connection: k.conn()}
			},
			Build: func(cfg adaptor.Config, machine *statemachine.Machine) (adaptor.Adaptor, error) {
				p, ok := cfg.(*Params)
				if !ok {
					return nil, fmt.Errorf("unexpected parameters %T", cfg)
				}
				tr, err := transport.New(p.Connection)
				if err != nil {
					return nil, err
				}
				return adaptor.NewJobAdaptor(k.kind, k.label, p, NewBackend(p, tr), adaptor.GenericStates, machine), nil
			},
		})
	}
}
