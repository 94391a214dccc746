package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/repository/inmemory"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

func newStoredJob(t *testing.T, repo *inmemory.InMemoryJobRepository) *model.Job {
	t.Helper()
	job := model.NewJob("t", "s")
	job.History = append(job.History, model.HistoryEntry{Status: model.StatusCreated, Message: "Job created", Timestamp: time.Now()})
	require.NoError(t, repo.CreateJob(context.Background(), job))
	return job
}

func TestUpdateJobOptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	job := newStoredJob(t, repo)
	assert.NotZero(t, job.History[0].ID)

	stale := job.Clone()
	job.Status = model.StatusPrepared
	require.NoError(t, repo.UpdateJob(ctx, job))
	assert.Equal(t, 1, job.Version)

	stale.Status = model.StatusError
	err := repo.UpdateJob(ctx, stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))

	got, err := repo.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPrepared, got.Status)
}

func TestClaimJobLease(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	job := newStoredJob(t, repo)

	claimed, err := repo.ClaimJob(ctx, job.ID, "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a", claimed.LeaseOwner)

	_, err = repo.ClaimJob(ctx, job.ID, "b", time.Minute)
	assert.ErrorIs(t, err, repository.ErrJobLeased)

	again, err := repo.ClaimJob(ctx, job.ID, "a", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, again.Version, claimed.Version)

	// the first claim copy is now stale
	assert.True(t, exception.IsOptimisticLockingFailure(repo.UpdateJob(ctx, claimed)))

	again.LeaseOwner = ""
	again.LeaseExpiresAt = nil
	require.NoError(t, repo.UpdateJob(ctx, again))
	_, err = repo.ClaimJob(ctx, job.ID, "b", time.Minute)
	assert.NoError(t, err)

	_, err = repo.ClaimJob(ctx, "missing", "a", time.Minute)
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestExpiredLeaseCanBeTaken(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	job := newStoredJob(t, repo)

	_, err := repo.ClaimJob(ctx, job.ID, "a", -time.Second)
	require.NoError(t, err)
	_, err = repo.ClaimJob(ctx, job.ID, "b", time.Minute)
	assert.NoError(t, err)
}

func TestFindJobsByStatus(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	base := time.Now()
	for i, s := range []model.JobStatus{model.StatusCreated, model.StatusRunning, model.StatusTerminated, model.StatusQueued} {
		job := model.NewJob("t", "s")
		job.Status = s
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.CreateJob(ctx, job))
	}

	jobs, err := repo.FindJobsByStatus(ctx, 0, model.PendingStatuses...)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, model.StatusCreated, jobs[0].Status)
	assert.Equal(t, model.StatusQueued, jobs[2].Status)

	jobs, err = repo.FindJobsByStatus(ctx, 1, model.PendingStatuses...)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	bySlug, err := repo.FindJobBySlug(ctx, jobs[0].Slug)
	require.NoError(t, err)
	assert.Equal(t, jobs[0].ID, bySlug.ID)
}
