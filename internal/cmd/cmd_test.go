package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/internal/cmd"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/export"
)

const configTemplate = `
waves:
  system:
    logging:
      level: WARN
  jobs:
    base_dir: {{root}}/jobs
  adaptors:
    enabled: [local-shell, local-cluster]
  runners:
    echo:
      adaptor: local-shell
      params:
        command: echo
  infrastructure:
    repository: sql
    database_ref: metadata
  database:
    metadata:
      type: sqlite
      database: {{root}}/waves.db
  storage:
    archive:
      type: local
      base_dir: {{root}}/archive
      bucket_name: history
  observability:
    metrics_address: ""
`

func writeConfig(t *testing.T) (string, string) {
	root := t.TempDir()
	path := filepath.Join(root, "waves.yaml")
	doc := strings.ReplaceAll(configTemplate, "{{root}}", root)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return root, path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	root := cmd.NewRootCommand(nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath, "--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseInputs(t *testing.T) {
	inputs, err := cmd.ParseInputs([]string{"evalue=1e-5", "db = nr=v5"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.JobInput{
		{Name: "evalue", Value: "1e-5", Type: model.InputText, CmdFormat: model.CmdValuated, Order: 2},
		{Name: "db", Value: " nr=v5", Type: model.InputText, CmdFormat: model.CmdValuated, Order: 3},
	}, inputs)

	_, err = cmd.ParseInputs([]string{"novalue"}, 0)
	assert.Error(t, err)
	_, err = cmd.ParseInputs([]string{"=value"}, 0)
	assert.Error(t, err)
}

func TestParseOutputs(t *testing.T) {
	outputs, err := cmd.ParseOutputs([]string{"hits=*.tsv"})
	require.NoError(t, err)
	assert.Equal(t, []model.JobOutput{{Name: "hits", Value: "*.tsv", Optional: true}}, outputs)
}

func TestAdaptors(t *testing.T) {
	_, cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "adaptors")
	require.NoError(t, err)
	assert.Contains(t, out, "local-shell")
	assert.Contains(t, out, "local-cluster")
	assert.NotContains(t, out, "ssh-shell")
}

func TestSubmitRequiresRunner(t *testing.T) {
	_, cfgPath := writeConfig(t)

	_, err := run(t, cfgPath, "submit", "--title", "no runner")
	assert.Error(t, err)
}

func TestJobLifecycle(t *testing.T) {
	root, cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "submit", "--runner", "echo", "--title", "greeting", "--input", "name=world")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 3)
	id, slug := fields[0], fields[1]
	assert.Equal(t, "CREATED", fields[2])
	assert.DirExists(t, filepath.Join(root, "jobs", slug))

	out, err = run(t, cfgPath, "status", slug, "--json")
	require.NoError(t, err)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, id, view["id"])
	assert.Equal(t, "greeting", view["title"])
	assert.Equal(t, "CREATED", view["status"])
	assert.Equal(t, "local-shell", view["adaptor"])

	out, err = run(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, slug)

	out, err = run(t, cfgPath, "export-history")
	require.NoError(t, err)
	assert.Contains(t, out, "no finished job")

	_, err = run(t, cfgPath, "advance", id, "explode")
	assert.Error(t, err, "unknown operation")

	out, err = run(t, cfgPath, "advance", id, "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "CANCELLED")

	out, err = run(t, cfgPath, "status")
	require.NoError(t, err)
	assert.NotContains(t, out, slug, "finished jobs are listed with --all only")
	out, err = run(t, cfgPath, "status", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, slug)

	out, err = run(t, cfgPath, "export-history", "--prefix", "archive")
	require.NoError(t, err)
	object := strings.Fields(out)[0]
	assert.True(t, strings.HasPrefix(object, "archive/dt="), object)

	rows, err := export.ReadFile(filepath.Join(root, "archive", "history", filepath.FromSlash(object)))
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, id, rows[0].JobID)
	assert.Equal(t, "CANCELLED", rows[len(rows)-1].StatusName)
}

func TestMigrate(t *testing.T) {
	_, cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "version 3 (dirty: false)")

	out, err = run(t, cfgPath, "migrate", "--down", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")
}
