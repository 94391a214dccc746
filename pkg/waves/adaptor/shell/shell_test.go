package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/adaptor/shell"
	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
	"github.com/tigerroll/waves/pkg/waves/adaptor/transport/transporttest"
	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

func newLocalAdaptor(t *testing.T, params map[string]interface{}) adaptor.Adaptor {
	t.Helper()
	r := adaptor.NewRegistry()
	shell.Register(r)
	f, ok := r.Factory(adaptor.KindLocalShell)
	require.True(t, ok)
	cfg, err := adaptor.DecodeParams(f, params)
	require.NoError(t, err)
	a, err := f.Build(cfg, statemachine.New())
	require.NoError(t, err)
	return a
}

func newJob(t *testing.T) *model.Job {
	t.Helper()
	m := workdir.NewManager(t.TempDir())
	job := model.NewJob("echo test", "sample")
	require.NoError(t, m.MakeJobDirs(job))
	require.NoError(t, m.CreateDefaultOutputs(job))
	return job
}

func TestLocalShellLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newLocalAdaptor(t, map[string]interface{}{"command": "echo"})
	job := newJob(t)
	job.Inputs = []model.JobInput{{Name: "word", Value: "hello", Type: model.InputText, CmdFormat: model.CmdPosix}}
	job.Outputs = []model.JobOutput{{Name: "out", Value: workdir.StdoutFile}}

	require.NoError(t, a.Prepare(ctx, job))
	assert.Equal(t, model.StatusPrepared, job.Status)
	assert.Equal(t, "echo hello", job.CommandLine)

	require.NoError(t, a.Run(ctx, job))
	assert.Equal(t, model.StatusQueued, job.Status)
	assert.NotEmpty(t, job.RemoteJobID)

	assert.Eventually(t, func() bool {
		s, err := a.PollStatus(ctx, job)
		return err == nil && s == model.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	job.Status = model.StatusCompleted
	require.NoError(t, a.FetchResults(ctx, job))
	assert.True(t, job.ResultsAvailable)

	out, err := os.ReadFile(filepath.Join(job.WorkingDir, workdir.StdoutFile))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	d, err := a.FetchRunDetails(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ExitCode)
	assert.Equal(t, job.RemoteJobID, d.RemoteJobID)
	require.NoError(t, a.Disconnect(ctx))
}

func TestLocalShellFailedCommand(t *testing.T) {
	ctx := context.Background()
	a := newLocalAdaptor(t, map[string]interface{}{"command": "false"})
	job := newJob(t)

	require.NoError(t, a.Prepare(ctx, job))
	require.NoError(t, a.Run(ctx, job))
	assert.Eventually(t, func() bool {
		s, err := a.PollStatus(ctx, job)
		return err == nil && s == model.StatusError
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReadyAndDumpConfig(t *testing.T) {
	a := newLocalAdaptor(t, map[string]interface{}{})
	ok, missing := a.Ready()
	assert.False(t, ok)
	assert.Equal(t, []string{"command"}, missing)

	err := a.Connect(context.Background())
	assert.True(t, exception.IsKind(err, exception.KindAdaptorNotReady))

	r := adaptor.NewRegistry()
	shell.Register(r)
	f, _ := r.Factory(adaptor.KindSSHShell)
	cfg, err := adaptor.DecodeParams(f, map[string]interface{}{
		"command": "bwa", "host": "cluster.example.org", "user": "waves", "crypt_password": "s3cret",
	})
	require.NoError(t, err)
	ssh, err := f.Build(cfg, nil)
	require.NoError(t, err)
	dump := ssh.DumpConfig()
	assert.Contains(t, dump, "Dump config for SSH shell (user/password)")
	assert.Contains(t, dump, " - crypt_password : ******\n")
	assert.Contains(t, dump, " - host : cluster.example.org\n")
	assert.Equal(t, "ssh://cluster.example.org", ssh.ConnexionString())
}

func TestUnknownParameterRejected(t *testing.T) {
	r := adaptor.NewRegistry()
	shell.Register(r)
	f, _ := r.Factory(adaptor.KindLocalShell)
	_, err := adaptor.DecodeParams(f, map[string]interface{}{"command": "echo", "queue": "all.q"})
	assert.True(t, exception.IsKind(err, exception.KindAdaptorLoad))
}

// sshKeyParams returns complete ssh-key-shell parameters, so that Connect
// reaches the transport.
func sshKeyParams() *shell.Params {
	c := transport.SSHConnection(transport.ModeKey)
	c.Host = "cluster.example.org"
	c.User = "waves"
	c.PrivateKey = "/home/waves/.ssh/id_ed25519"
	return &shell.Params{Command: "bwa", Connection: c}
}

func TestSSHKeyParamsAreReady(t *testing.T) {
	p := sshKeyParams()
	a := adaptor.NewJobAdaptor(adaptor.KindSSHKeyShell, "ssh", p, shell.NewBackend(p, &transporttest.MockTransport{Remote: true}), adaptor.GenericStates, nil)
	ok, missing := a.Ready()
	assert.True(t, ok, "missing %v", missing)

	p.Port = 0
	ok, missing = a.Ready()
	assert.False(t, ok)
	assert.Equal(t, []string{"port"}, missing)
}

func TestRemoteStatusMapping(t *testing.T) {
	ctx := context.Background()
	p := sshKeyParams()
	cases := map[string]model.JobStatus{
		"running\n": model.StatusRunning,
		"exit 0\n":  model.StatusCompleted,
		"exit 3\n":  model.StatusError,
		"unknown\n": model.StatusUndefined,
	}
	for out, want := range cases {
		tr := &transporttest.MockTransport{Remote: true}
		tr.On("Open", mock.Anything).Return(nil)
		tr.On("Exec", mock.Anything, mock.MatchedBy(func(cmd string) bool {
			return strings.Contains(cmd, "kill -0 1234") && strings.Contains(cmd, "waves/abc/job.exitcode")
		})).Return(transport.Result{Stdout: out}, nil)

		a := adaptor.NewJobAdaptor(adaptor.KindSSHKeyShell, "ssh", p, shell.NewBackend(p, tr), adaptor.GenericStates, nil)
		job := &model.Job{Slug: "abc", Status: model.StatusQueued, RemoteJobID: "1234"}
		got, err := a.PollStatus(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, want, got, out)
		tr.AssertExpectations(t)
	}
}

func TestCancelWithoutRemoteIDSkipsBackend(t *testing.T) {
	tr := &transporttest.MockTransport{Remote: true}
	p := sshKeyParams()
	a := adaptor.NewJobAdaptor(adaptor.KindSSHKeyShell, "ssh", p, shell.NewBackend(p, tr), adaptor.GenericStates, nil)
	job := &model.Job{Slug: "abc", Status: model.StatusPrepared}

	require.NoError(t, a.Cancel(context.Background(), job))
	assert.Equal(t, model.StatusCancelled, job.Status)
	tr.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything)
}

func TestRemoteSubmitFailureIsJobRunException(t *testing.T) {
	tr := &transporttest.MockTransport{Remote: true}
	tr.On("Open", mock.Anything).Return(nil)
	tr.On("Exec", mock.Anything, mock.Anything).Return(transport.Result{ExitCode: 127, Stderr: "sh: not found"}, nil)
	p := sshKeyParams()
	a := adaptor.NewJobAdaptor(adaptor.KindSSHKeyShell, "ssh", p, shell.NewBackend(p, tr), adaptor.GenericStates, nil)
	job := &model.Job{Slug: "abc", Status: model.StatusPrepared}

	err := a.Run(context.Background(), job)
	assert.True(t, exception.IsKind(err, exception.KindJobRun))
	assert.True(t, exception.IsAdaptorException(err))
	assert.Equal(t, model.StatusPrepared, job.Status)
}
