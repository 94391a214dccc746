package export_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage/local"
	config "github.com/tigerroll/waves/pkg/waves/core/config"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/export"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/repository/inmemory"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func finishedJob(title string, final model.JobStatus, created time.Time) *model.Job {
	j := model.NewJob(title, "blast")
	j.CreatedAt = created
	j.Status = final
	j.History = []model.HistoryEntry{
		{Status: model.StatusCreated, Message: "Job created", Timestamp: created, IsAdmin: true},
		{Status: model.StatusCreated, Message: "Marked for re-run", Timestamp: created.Add(time.Minute)},
		{Status: final, Message: "Data retrieved", Timestamp: created.Add(2 * time.Minute)},
	}
	return j
}

func setup(t *testing.T, jobs ...*model.Job) (*inmemory.InMemoryJobRepository, storage.StorageConnectionResolver, string) {
	t.Helper()
	repo := inmemory.NewInMemoryJobRepository()
	for _, j := range jobs {
		require.NoError(t, repo.CreateJob(context.Background(), j))
	}
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Waves.Storage = map[string]interface{}{
		"archive": map[string]interface{}{"type": "local", "base_dir": dir, "bucket_name": "waves"},
	}
	resolver := storage.NewResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewProvider(cfg)},
		Cfg:       cfg,
	})
	return repo, resolver, dir
}

func TestExportWritesFinalJobHistory(t *testing.T) {
	done := finishedJob("done", model.StatusTerminated, t0)
	failed := finishedJob("failed", model.StatusError, t0.Add(time.Hour))
	running := model.NewJob("running", "blast")
	running.Status = model.StatusRunning
	running.History = []model.HistoryEntry{{Status: model.StatusRunning, Message: "Job running", Timestamp: t0}}
	repo, resolver, dir := setup(t, done, failed, running)

	exporter, err := export.NewHistoryExporter(repo, resolver, export.Settings{
		StorageRef: "archive", Prefix: "history", Compression: "gzip",
	}, export.WithClock(func() time.Time { return t0.Add(24 * time.Hour) }))
	require.NoError(t, err)

	res, err := exporter.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Jobs)
	assert.Equal(t, 6, res.Rows)
	assert.Greater(t, res.Bytes, 0)
	assert.Regexp(t, `^history/dt=2024-05-02/history_20240502080000_[0-9a-f]{8}\.parquet$`, res.Object)

	rows, err := export.ReadFile(filepath.Join(dir, "waves", filepath.FromSlash(res.Object)))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, export.HistoryRow{
		JobID:       done.ID,
		Slug:        done.Slug,
		Title:       "done",
		Status:      int32(model.StatusCreated),
		StatusName:  "Created",
		Message:     "Job created",
		TimestampMs: t0.UnixMilli(),
		IsAdmin:     true,
	}, rows[0])
	assert.Equal(t, "Terminated", rows[2].StatusName)
	assert.Equal(t, failed.ID, rows[5].JobID)
	assert.Equal(t, int32(model.StatusError), rows[5].Status)
}

func TestExportWithoutFinishedJobsUploadsNothing(t *testing.T) {
	repo, resolver, dir := setup(t)
	exporter, err := export.NewHistoryExporter(repo, resolver, export.Settings{StorageRef: "archive"})
	require.NoError(t, err)

	res, err := exporter.Export(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, res.Object)
	assert.NoDirExists(t, filepath.Join(dir, "waves"))
}

type failingResolver struct{}

func (failingResolver) ResolveStorageConnection(context.Context, string) (storage.StorageConnection, error) {
	return nil, errors.New("no such storage")
}

func TestExportFailsWhenStorageIsMissing(t *testing.T) {
	repo, _, _ := setup(t, finishedJob("done", model.StatusWarning, t0))
	exporter, err := export.NewHistoryExporter(repo, failingResolver{}, export.Settings{StorageRef: "nowhere"})
	require.NoError(t, err)

	_, err = exporter.Export(context.Background())
	assert.ErrorContains(t, err, "no such storage")
}

func TestSettingsValidation(t *testing.T) {
	_, err := export.NewHistoryExporter(nil, nil, export.Settings{})
	assert.Error(t, err)
	_, err = export.NewHistoryExporter(nil, nil, export.Settings{StorageRef: "a", Compression: "brotli"})
	assert.Error(t, err)
	for _, c := range []string{"", "snappy", "GZIP", "zstd", "NONE", "uncompressed"} {
		_, err = export.NewHistoryExporter(nil, nil, export.Settings{StorageRef: "a", Compression: c})
		assert.NoError(t, err, c)
	}
}

func TestRows(t *testing.T) {
	j := finishedJob("x", model.StatusCancelled, t0)
	rows := export.Rows([]*model.Job{j})
	require.Len(t, rows, 3)
	assert.False(t, rows[1].IsAdmin)
	assert.Equal(t, "Marked for re-run", rows[1].Message)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), rows[1].TimestampMs)
}
