// Package sql stores jobs and their history in a relational database
// through GORM.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	repository "github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

const module = "repository.sql"

// SQLJobRepository implements repository.JobRepository on the waves_jobs and
// waves_job_history tables.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the database entry used by this repository (e.g., "metadata").
	dbName string
	now    func() time.Time
}

// NewSQLJobRepository creates a repository reading connection dbName from
// the resolver.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName, now: time.Now}
}

func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewWavesError(module, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn, nil
}

func (r *SQLJobRepository) CreateJob(ctx context.Context, job *model.Job) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	job.Version = 0
	entity := fromDomainJob(job)
	var ids map[int]int64
	err = conn.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entity).Error; err != nil {
			return err
		}
		var err error
		ids, err = insertHistory(tx, job)
		return err
	})
	if err != nil {
		return exception.NewWavesError(module, fmt.Sprintf("failed to create job %s", job.Slug), err)
	}
	assignHistoryIDs(job, ids)
	return nil
}

func (r *SQLJobRepository) UpdateJob(ctx context.Context, job *model.Job) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	originalVersion := job.Version
	job.UpdatedAt = r.now()
	entity := fromDomainJob(job)

	var ids map[int]int64
	err = conn.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&JobEntity{}).
			Where("id = ? AND version = ?", job.ID, originalVersion).
			Updates(jobColumns(entity, originalVersion+1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.staleOrMissing(tx, job, originalVersion)
		}
		var err error
		if ids, err = insertHistory(tx, job); err != nil {
			return err
		}
		return refreshAdminFlags(tx, job)
	})
	if err != nil {
		job.Version = originalVersion
		if errors.Is(err, repository.ErrJobNotFound) || exception.IsOptimisticLockingFailure(err) {
			return err
		}
		return exception.NewWavesError(module, fmt.Sprintf("failed to update job %s", job.Slug), err)
	}
	job.Version = originalVersion + 1
	assignHistoryIDs(job, ids)
	return nil
}

// staleOrMissing tells a missing row from a version mismatch.
func (r *SQLJobRepository) staleOrMissing(tx *gorm.DB, job *model.Job, version int) error {
	var count int64
	if err := tx.Model(&JobEntity{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrJobNotFound
	}
	return exception.NewOptimisticLockingFailureException(module,
		fmt.Sprintf("job %s with version %d not found for update", job.Slug, version), nil)
}

func jobColumns(e *JobEntity, version int) map[string]interface{} {
	return map[string]interface{}{
		"title":             e.Title,
		"service":           e.Service,
		"status":            e.Status,
		"nb_retry":          e.NbRetry,
		"remote_job_id":     e.RemoteJobID,
		"remote_history_id": e.RemoteHistoryID,
		"exit_code":         e.ExitCode,
		"command_line":      e.CommandLine,
		"adaptor":           e.Adaptor,
		"working_dir":       e.WorkingDir,
		"inputs":            e.Inputs,
		"outputs":           e.Outputs,
		"results_available": e.ResultsAvailable,
		"notify":            e.Notify,
		"email_to":          e.EmailTo,
		"lease_owner":       e.LeaseOwner,
		"lease_expires_at":  e.LeaseExpiresAt,
		"version":           version,
		"updated_at":        e.UpdatedAt,
	}
}

// insertHistory stores the entries without an ID and returns the generated
// IDs by entry index. They are only written back once the transaction has
// committed, so a rolled back entry is inserted again by the next save.
func insertHistory(tx *gorm.DB, job *model.Job) (map[int]int64, error) {
	ids := make(map[int]int64)
	for i, h := range job.History {
		if h.ID != 0 {
			continue
		}
		entity := fromDomainHistory(job.ID, h)
		if err := tx.Create(entity).Error; err != nil {
			return nil, err
		}
		ids[i] = entity.ID
	}
	return ids, nil
}

func assignHistoryIDs(job *model.Job, ids map[int]int64) {
	for i, id := range ids {
		job.History[i].ID = id
		job.History[i].JobID = job.ID
	}
}

// refreshAdminFlags rewrites the admin flag of stored entries. The other
// columns of a history row never change.
func refreshAdminFlags(tx *gorm.DB, job *model.Job) error {
	var admin, public []int64
	for _, h := range job.History {
		if h.ID == 0 {
			continue
		}
		if h.IsAdmin {
			admin = append(admin, h.ID)
		} else {
			public = append(public, h.ID)
		}
	}
	if len(admin) > 0 {
		if err := tx.Model(&HistoryEntity{}).
			Where("job_id = ? AND id IN ? AND is_admin = ?", job.ID, admin, false).
			Update("is_admin", true).Error; err != nil {
			return err
		}
	}
	if len(public) > 0 {
		if err := tx.Model(&HistoryEntity{}).
			Where("job_id = ? AND id IN ? AND is_admin = ?", job.ID, public, true).
			Update("is_admin", false).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLJobRepository) ClaimJob(ctx context.Context, id, owner string, ttl time.Duration) (*model.Job, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var claimed *model.Job
	err = conn.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		var entity JobEntity
		if err := tx.Where("id = ?", id).Take(&entity).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrJobNotFound
			}
			return err
		}
		now := r.now()
		current := toDomainJob(&entity, nil)
		if current.Leased(owner, now) {
			return repository.ErrJobLeased
		}
		expires := now.Add(ttl)
		res := tx.Model(&JobEntity{}).
			Where("id = ? AND version = ?", id, entity.Version).
			Updates(map[string]interface{}{
				"lease_owner":      owner,
				"lease_expires_at": expires,
				"version":          entity.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return exception.NewOptimisticLockingFailureException(module,
				fmt.Sprintf("job %s changed while being claimed", entity.Slug), nil)
		}
		entity.LeaseOwner = owner
		entity.LeaseExpiresAt = &expires
		entity.Version++
		history, err := loadHistory(tx, id)
		if err != nil {
			return err
		}
		claimed = toDomainJob(&entity, history[id])
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) || errors.Is(err, repository.ErrJobLeased) || exception.IsOptimisticLockingFailure(err) {
			return nil, err
		}
		return nil, exception.NewWavesError(module, fmt.Sprintf("failed to claim job %s", id), err)
	}
	return claimed, nil
}

func (r *SQLJobRepository) FindJobByID(ctx context.Context, id string) (*model.Job, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *SQLJobRepository) FindJobBySlug(ctx context.Context, slug string) (*model.Job, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *SQLJobRepository) findOne(ctx context.Context, where string, arg string) (*model.Job, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	db := conn.GormDB(ctx)
	var entity JobEntity
	if err := db.Where(where, arg).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobNotFound
		}
		return nil, exception.NewWavesError(module, fmt.Sprintf("failed to find job (%s)", arg), err)
	}
	history, err := loadHistory(db, entity.ID)
	if err != nil {
		return nil, exception.NewWavesError(module, fmt.Sprintf("failed to load history of job %s", entity.Slug), err)
	}
	return toDomainJob(&entity, history[entity.ID]), nil
}

func (r *SQLJobRepository) FindJobsByStatus(ctx context.Context, limit int, statuses ...model.JobStatus) ([]*model.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	db := conn.GormDB(ctx)
	q := db.Where("status IN ?", statuses).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entities []JobEntity
	if err := q.Find(&entities).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, nil
		}
		return nil, exception.NewWavesError(module, "failed to list jobs by status", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	ids := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
	}
	history, err := loadHistory(db, ids...)
	if err != nil {
		return nil, exception.NewWavesError(module, "failed to load job history", err)
	}
	out := make([]*model.Job, len(entities))
	for i := range entities {
		out[i] = toDomainJob(&entities[i], history[entities[i].ID])
	}
	return out, nil
}

// loadHistory returns the history of each job, in insertion order.
func loadHistory(db *gorm.DB, jobIDs ...string) (map[string][]HistoryEntity, error) {
	var rows []HistoryEntity
	err := db.Where("job_id IN ?", jobIDs).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]HistoryEntity, len(jobIDs))
	for _, row := range rows {
		out[row.JobID] = append(out[row.JobID], row)
	}
	return out, nil
}

// Close releases nothing; connections belong to the resolver.
func (r *SQLJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)
