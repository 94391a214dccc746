package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/internal/app"
	"github.com/tigerroll/waves/pkg/waves/core/config"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/runner"
	"github.com/tigerroll/waves/pkg/waves/core/job/scheduler"
)

const document = `
waves:
  jobs:
    max_retry: 2
    initial_interval_seconds: 3
    max_interval_seconds: 30
    factor: 1.5
  runners:
    echo:
      adaptor: local-shell
      params:
        command: echo
  scheduler:
    polling_interval_seconds: 2
    workers: 8
  export:
    storage_ref: archive
    prefix: jobs
    compression: GZIP
  infrastructure:
    repository: inmemory
  observability:
    metrics_address: ""
`

func load(t *testing.T) *config.Config {
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(document))
	require.NoError(t, err)
	cfg.Waves.Jobs.BaseDir = filepath.Join(t.TempDir(), "jobs")
	return cfg
}

func TestSettings(t *testing.T) {
	cfg := load(t)

	r := app.RetrySettings(cfg)
	assert.Equal(t, 2, r.MaxRetry)
	assert.Equal(t, 3*time.Second, r.InitialInterval)
	assert.Equal(t, 30*time.Second, r.MaxInterval)
	assert.Equal(t, 1.5, r.Factor)

	assert.Equal(t, map[string]runner.Definition{
		"echo": {Adaptor: "local-shell", Params: map[string]interface{}{"command": "echo"}},
	}, app.Definitions(cfg))

	assert.Equal(t, scheduler.Settings{PollingInterval: 2 * time.Second, Workers: 8, BatchSize: 100}, app.SchedulerSettings(cfg))

	e := app.ExportSettings(cfg)
	assert.Equal(t, "archive", e.StorageRef)
	assert.Equal(t, "jobs", e.Prefix)
	assert.Equal(t, "GZIP", e.Compression)

	assert.NotEmpty(t, app.LeaseOwner())
}

func TestExecuteCreatesJob(t *testing.T) {
	cfg := load(t)

	var r *runner.JobRunner
	var job *model.Job
	err := app.Execute(context.Background(), cfg, func(ctx context.Context) error {
		var err error
		job, err = r.CreateJob(ctx, runner.JobRequest{Title: "hello", Service: "demo", Runner: "echo"})
		return err
	}, &r)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.StatusCreated, job.Status)
	assert.DirExists(t, filepath.Join(cfg.Waves.Jobs.BaseDir, job.Slug))
}
