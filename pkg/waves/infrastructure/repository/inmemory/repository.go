// Package inmemory provides an in-memory implementation of the JobRepository interface.
// It is suitable for tests and single process deployments where persistence is not required.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

const module = "repository.inmemory"

// InMemoryJobRepository holds jobs in a map. Stored jobs are copies: callers
// never share memory with the repository.
type InMemoryJobRepository struct {
	jobs      map[string]*model.Job
	nextEntry int64
	now       func() time.Time
	mu        sync.RWMutex // Mutex to protect concurrent access to maps.
}

// NewInMemoryJobRepository creates an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

// assignHistoryIDs numbers new history entries in place.
func (r *InMemoryJobRepository) assignHistoryIDs(job *model.Job) {
	for i := range job.History {
		if job.History[i].ID == 0 {
			r.nextEntry++
			job.History[i].ID = r.nextEntry
			job.History[i].JobID = job.ID
		}
	}
}

func (r *InMemoryJobRepository) CreateJob(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}
	job.Version = 0
	r.assignHistoryIDs(job)
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *InMemoryJobRepository) UpdateJob(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[job.ID]
	if !ok {
		return repository.ErrJobNotFound
	}
	if stored.Version != job.Version {
		return exception.NewOptimisticLockingFailureException(module,
			fmt.Sprintf("job %s was modified concurrently (version %d, stored %d)", job.Slug, job.Version, stored.Version), nil)
	}
	job.Version++
	r.assignHistoryIDs(job)
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *InMemoryJobRepository) ClaimJob(ctx context.Context, id, owner string, ttl time.Duration) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	now := r.now()
	if stored.Leased(owner, now) {
		return nil, repository.ErrJobLeased
	}
	expires := now.Add(ttl)
	stored.LeaseOwner = owner
	stored.LeaseExpiresAt = &expires
	stored.Version++
	return stored.Clone(), nil
}

func (r *InMemoryJobRepository) FindJobByID(ctx context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *InMemoryJobRepository) FindJobBySlug(ctx context.Context, slug string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.jobs {
		if job.Slug == slug {
			return job.Clone(), nil
		}
	}
	return nil, repository.ErrJobNotFound
}

func (r *InMemoryJobRepository) FindJobsByStatus(ctx context.Context, limit int, statuses ...model.JobStatus) ([]*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[model.JobStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*model.Job
	for _, job := range r.jobs {
		if wanted[job.Status] {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases nothing; it exists to mirror the SQL repository.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)
