package workspace_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
	"github.com/tigerroll/waves/pkg/waves/adaptor/transport/transporttest"
	"github.com/tigerroll/waves/pkg/waves/adaptor/workspace"
	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

func TestParseMarkers(t *testing.T) {
	m := workspace.ParseMarkers("job.started=1700000000\njob.finished=\njob.exitcode=2\n")
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), m.Started)
	assert.True(t, m.Finished.IsZero())
	assert.True(t, m.Exited)
	assert.Equal(t, 2, m.ExitCode)

	m = workspace.ParseMarkers("job.started=\njob.finished=\njob.exitcode=\n")
	assert.False(t, m.Exited)
}

func TestWrapperScriptRunsCommand(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "job.sh")
	require.NoError(t, os.WriteFile(script, []byte(workspace.WrapperScript(dir, "echo hi > out.txt; exit 5")), 0o775))

	_ = exec.Command("/bin/sh", script).Run()

	data, err := os.ReadFile(filepath.Join(dir, workspace.ExitCodeFile))
	require.NoError(t, err)
	assert.Equal(t, "5\n", string(data))
	_, err = os.Stat(filepath.Join(dir, workspace.StartedFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "out.txt"))
	assert.NoError(t, err)
}

func TestWrapperScriptSurvivesExec(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "job.sh")
	require.NoError(t, os.WriteFile(script, []byte(workspace.WrapperScript(dir, "exec sh -c 'exit 3'")), 0o775))

	_ = exec.Command("/bin/sh", script).Run()

	data, err := os.ReadFile(filepath.Join(dir, workspace.ExitCodeFile))
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(data))
	_, err = os.Stat(filepath.Join(dir, workspace.FinishedFile))
	assert.NoError(t, err)
}

func TestStageRejectsInputsOutsideJobDir(t *testing.T) {
	m := workdir.NewManager(t.TempDir())
	ctx := context.Background()
	for _, value := range []string{"../../../../etc/passwd", "/etc/passwd", "data/../../x"} {
		t.Run(value, func(t *testing.T) {
			job := model.NewJob("t", "s")
			require.NoError(t, m.MakeJobDirs(job))
			job.Inputs = []model.JobInput{{Name: "in", Value: value, Type: model.InputFile}}

			tr := &transporttest.MockTransport{Remote: true}
			tr.On("MkdirAll", mock.Anything, "/scratch/"+job.Slug).Return(nil)
			ws := workspace.Workspace{Transport: tr, Base: "/scratch"}

			err := ws.Stage(ctx, job, "cat in")
			require.Error(t, err)
			assert.True(t, exception.IsKind(err, exception.KindJobPrepare))
			tr.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestStageUploadsNestedInputs(t *testing.T) {
	m := workdir.NewManager(t.TempDir())
	job := model.NewJob("t", "s")
	require.NoError(t, m.MakeJobDirs(job))
	job.Inputs = []model.JobInput{{Name: "in", Value: "data/./q.fa", Type: model.InputFile}}

	tr := &transporttest.MockTransport{Remote: true}
	dir := "/scratch/" + job.Slug
	tr.On("MkdirAll", mock.Anything, dir).Return(nil)
	tr.On("Upload", mock.Anything, filepath.Join(job.WorkingDir, "data", "q.fa"), dir+"/data/q.fa").Return(nil)
	tr.On("Upload", mock.Anything, filepath.Join(job.WorkingDir, workspace.ScriptFile), dir+"/"+workspace.ScriptFile).Return(nil)
	ws := workspace.Workspace{Transport: tr, Base: "/scratch"}

	require.NoError(t, ws.Stage(context.Background(), job, "cat data/q.fa"))
	tr.AssertExpectations(t)
}

func TestStageAndDetailsLocal(t *testing.T) {
	m := workdir.NewManager(t.TempDir())
	job := model.NewJob("t", "s")
	require.NoError(t, m.MakeJobDirs(job))
	require.NoError(t, os.WriteFile(filepath.Join(job.WorkingDir, "in.fa"), []byte(">s\nACGT\n"), 0o664))
	job.Inputs = []model.JobInput{{Name: "in", Value: "in.fa", Type: model.InputFile}}
	job.Outputs = []model.JobOutput{{Name: "counts", Value: "*.txt"}}

	ws := workspace.Workspace{Transport: transport.NewLocal()}
	ctx := context.Background()
	require.NoError(t, ws.Stage(ctx, job, "wc -c in.fa > count.txt"))

	_, err := ws.Transport.Exec(ctx, "sh "+filepath.Join(job.WorkingDir, workspace.ScriptFile))
	require.NoError(t, err)

	files, err := ws.List(ctx, job)
	require.NoError(t, err)
	assert.Contains(t, files, "count.txt")
	assert.Contains(t, files, workspace.ExitCodeFile)

	require.NoError(t, ws.Collect(ctx, job))

	d, err := ws.Details(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ExitCode)
	assert.False(t, d.Started.IsZero())
	assert.False(t, d.Finished.IsZero())
	assert.Equal(t, job.ID, d.ID)
}
