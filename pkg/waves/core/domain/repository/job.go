// Package repository declares the persistence port of the job core.
package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

// ErrJobNotFound is returned when no job matches the identifier.
var ErrJobNotFound = errors.New("job not found")

// ErrJobLeased is returned by ClaimJob when another worker holds a live lease.
var ErrJobLeased = errors.New("job is being advanced by another worker")

func init() {
	exception.RegisterErrorType("ErrJobNotFound", ErrJobNotFound)
	exception.RegisterErrorType("ErrJobLeased", ErrJobLeased)
}

// JobRepository persists jobs and their append-only history.
type JobRepository interface {
	// CreateJob stores a new job together with its initial history.
	CreateJob(ctx context.Context, job *model.Job) error

	// UpdateJob saves the job if its Version matches the stored one, then bumps
	// Version. New history entries (ID == 0) are inserted; existing entries only
	// have their admin flag refreshed. A stale Version yields
	// exception.ErrOptimisticLockingFailure.
	UpdateJob(ctx context.Context, job *model.Job) error

	// ClaimJob takes the per-job lease for owner until now+ttl when the lease is
	// free, expired or already held by owner. It returns the claimed job with its
	// new Version, ErrJobLeased when someone else holds it, or an optimistic
	// locking failure when the row changed concurrently.
	ClaimJob(ctx context.Context, id, owner string, ttl time.Duration) (*model.Job, error)

	// FindJobByID loads a job with its full history.
	FindJobByID(ctx context.Context, id string) (*model.Job, error)

	// FindJobBySlug loads a job by its external slug.
	FindJobBySlug(ctx context.Context, slug string) (*model.Job, error)

	// FindJobsByStatus lists jobs in any of the given statuses, oldest first.
	// limit <= 0 means no limit.
	FindJobsByStatus(ctx context.Context, limit int, statuses ...model.JobStatus) ([]*model.Job, error)
}
