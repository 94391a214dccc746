package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/core/config"
)

const document = `
waves:
  system:
    logging:
      level: DEBUG
  jobs:
    base_dir: ${TEST_WAVES_ROOT}/jobs
    max_retry: 3
    retryable_errors: ["context.DeadlineExceeded"]
  adaptors:
    enabled: [local-shell, ssh-cluster]
  runners:
    sge:
      adaptor: ssh-cluster
      params:
        command: blastp
        host: cluster.example.org
        queue: long.q
  infrastructure:
    repository: sql
    database_ref: metadata
  database:
    metadata:
      type: sqlite
      database: /tmp/waves.db
`

func TestLoadConfigLayers(t *testing.T) {
	t.Setenv("TEST_WAVES_ROOT", "/srv/waves")
	t.Setenv("WAVES_JOBS_MAX_RETRY", "7")
	t.Setenv("WAVES_SCHEDULER_WORKERS", "16")
	t.Setenv("WAVES_ADAPTORS_ENABLED", "local-shell, public-api")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(document))
	require.NoError(t, err)

	w := cfg.Waves
	assert.Equal(t, "DEBUG", w.System.Logging.Level)
	assert.Equal(t, "text", w.System.Logging.Format, "defaults survive")
	assert.Equal(t, "/srv/waves/jobs", w.Jobs.BaseDir)
	assert.Equal(t, 7, w.Jobs.MaxRetry)
	assert.Equal(t, 16, w.Scheduler.Workers)
	assert.Equal(t, 10*time.Second, w.Scheduler.PollingInterval())
	assert.Equal(t, 5*time.Minute, w.Jobs.LeaseTTL())
	assert.Equal(t, []string{"local-shell", "public-api"}, w.Adaptors.Enabled)
	require.Contains(t, w.Runners, "sge")
	assert.Equal(t, "ssh-cluster", w.Runners["sge"].Adaptor)
	assert.Equal(t, "long.q", w.Runners["sge"].Params["queue"])
	assert.Contains(t, w.Database, "metadata")
}

func TestLoadConfigFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("WAVES_JOBS_BASE_DIR=/from/dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WAVES_JOBS_BASE_DIR") })

	cfg, err := config.LoadConfig(env, config.EmbeddedConfig(document))
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.Waves.Jobs.BaseDir)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown error type": `
waves:
  infrastructure: {repository: inmemory}
  jobs: {retryable_errors: [NoSuchError]}
`,
		"missing database": `
waves:
  infrastructure: {repository: sql, database_ref: nowhere}
`,
		"unknown repository": `
waves:
  infrastructure: {repository: cassandra}
`,
		"runner without adaptor": `
waves:
  infrastructure: {repository: inmemory}
  runners:
    broken: {params: {command: ls}}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadConfig("", config.EmbeddedConfig(doc))
			assert.Error(t, err)
		})
	}

	_, err := config.LoadConfig("", config.EmbeddedConfig("waves:\n  infrastructure: {repository: inmemory}\n"))
	assert.NoError(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.LoadFile("", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
