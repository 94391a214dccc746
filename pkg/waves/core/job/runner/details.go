package runner

import (
	"context"
	"errors"
	"io/fs"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// RetrieveRunDetails returns the run-details snapshot, fetching it from the
// adaptor and writing it on first use. It never fails: when the backend
// cannot answer the details are rebuilt from the job history.
func (r *JobRunner) RetrieveRunDetails(ctx context.Context, job *model.Job, ad adaptor.Adaptor) *model.RunDetails {
	if d, ok := r.snapshot(job); ok {
		return d
	}
	var d *model.RunDetails
	if ad != nil {
		fetched, err := ad.FetchRunDetails(ctx, job)
		if err != nil {
			logger.Warnf("Job %s: run details unavailable from %s: %v", job.Slug, ad.Kind(), err)
		} else {
			d = fetched
		}
	}
	if d == nil {
		d = r.DefaultRunDetails(job)
	}
	if err := r.workdir.WriteRunDetails(job, d); err != nil {
		logger.Warnf("Job %s: %v", job.Slug, err)
	}
	return d
}

// RunDetails returns the snapshot when present and the history based
// defaults otherwise, without contacting the backend.
func (r *JobRunner) RunDetails(job *model.Job) *model.RunDetails {
	if d, ok := r.snapshot(job); ok {
		return d
	}
	return r.DefaultRunDetails(job)
}

func (r *JobRunner) snapshot(job *model.Job) (*model.RunDetails, bool) {
	d, err := r.workdir.ReadRunDetails(job)
	switch {
	case err == nil:
		return d, true
	case errors.Is(err, fs.ErrNotExist):
		return nil, false
	default:
		logger.Errorf("Unable to read run details of job %s: %v", job.Slug, err)
		return r.DefaultRunDetails(job), true
	}
}

// DefaultRunDetails rebuilds run details from the job: the creation time, the
// first PREPARED entry as start and the first entry at COMPLETED or beyond as
// end. Missing entries give zero times.
func (r *JobRunner) DefaultRunDetails(job *model.Job) *model.RunDetails {
	d := &model.RunDetails{
		ID:          job.ID,
		Slug:        job.Slug,
		RemoteJobID: job.RemoteJobID,
		Title:       job.Title,
		ExitCode:    job.ExitCode,
		Created:     job.CreatedAt,
	}
	if h := job.FirstHistoryWith(func(e model.HistoryEntry) bool { return e.Status == model.StatusPrepared }); h != nil {
		d.Started = h.Timestamp
	}
	if h := job.FirstHistoryWith(func(e model.HistoryEntry) bool { return e.Status >= model.StatusCompleted }); h != nil {
		d.Finished = h.Timestamp
	}
	return d
}
