package joblog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/listener/joblog"
)

func event(to model.JobStatus, msg string) statemachine.TransitionEvent {
	return statemachine.TransitionEvent{
		JobID: "id", Slug: "slug", Title: "t",
		From: model.StatusRunning, To: to, Message: msg,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWritesTransitionsToJobLog(t *testing.T) {
	base := t.TempDir()
	l := joblog.NewJobLogListener(workdir.NewManager(base), "INFO")

	l.OnTransition(context.Background(), event(model.StatusCompleted, "Job completed"))
	l.OnTransition(context.Background(), event(model.StatusError, "[Error] boom"))

	data, err := os.ReadFile(filepath.Join(base, "slug", workdir.LogFile))
	require.NoError(t, err)
	assert.Equal(t,
		"2024-05-01T12:00:00Z [INFO] Running -> Completed: Job completed\n"+
			"2024-05-01T12:00:00Z [WARN] Running -> Error: [Error] boom\n",
		string(data))
}

func TestLevelFiltersLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom")
	l := joblog.NewJobLogListener(workdir.NewManager(t.TempDir()), "warn")

	e := event(model.StatusCompleted, "skipped")
	e.WorkingDir = dir
	l.OnTransition(context.Background(), e)
	assert.NoFileExists(t, filepath.Join(dir, workdir.LogFile))

	e = event(model.StatusCancelled, "Job cancelled")
	e.WorkingDir = dir
	l.OnTransition(context.Background(), e)
	assert.FileExists(t, filepath.Join(dir, workdir.LogFile))
}
