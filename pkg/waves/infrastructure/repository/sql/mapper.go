package sql

import (
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

func fromDomainJob(j *model.Job) *JobEntity {
	e := &JobEntity{
		ID:               j.ID,
		Slug:             j.Slug,
		Title:            j.Title,
		Service:          j.Service,
		Status:           j.Status,
		NbRetry:          j.NbRetry,
		RemoteJobID:      j.RemoteJobID,
		RemoteHistoryID:  j.RemoteHistoryID,
		ExitCode:         j.ExitCode,
		CommandLine:      j.CommandLine,
		WorkingDir:       j.WorkingDir,
		Inputs:           jsonColumn[[]model.JobInput]{Val: j.Inputs},
		Outputs:          jsonColumn[[]model.JobOutput]{Val: j.Outputs},
		ResultsAvailable: j.ResultsAvailable,
		Notify:           j.Notify,
		EmailTo:          j.EmailTo,
		LeaseOwner:       j.LeaseOwner,
		LeaseExpiresAt:   j.LeaseExpiresAt,
		Version:          j.Version,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
	if j.Adaptor != nil {
		e.Adaptor = j.Adaptor.Clone()
	}
	return e
}

func toDomainJob(e *JobEntity, history []HistoryEntity) *model.Job {
	j := &model.Job{
		ID:               e.ID,
		Slug:             e.Slug,
		Title:            e.Title,
		Service:          e.Service,
		Status:           e.Status,
		NbRetry:          e.NbRetry,
		RemoteJobID:      e.RemoteJobID,
		RemoteHistoryID:  e.RemoteHistoryID,
		ExitCode:         e.ExitCode,
		CommandLine:      e.CommandLine,
		WorkingDir:       e.WorkingDir,
		Inputs:           e.Inputs.Val,
		Outputs:          e.Outputs.Val,
		ResultsAvailable: e.ResultsAvailable,
		Notify:           e.Notify,
		EmailTo:          e.EmailTo,
		LeaseOwner:       e.LeaseOwner,
		LeaseExpiresAt:   e.LeaseExpiresAt,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if e.Adaptor.Kind != "" {
		b := e.Adaptor.Clone()
		j.Adaptor = &b
	}
	j.History = make([]model.HistoryEntry, 0, len(history))
	for _, h := range history {
		j.History = append(j.History, toDomainHistory(h))
	}
	return j
}

func fromDomainHistory(jobID string, h model.HistoryEntry) *HistoryEntity {
	return &HistoryEntity{
		ID:        h.ID,
		JobID:     jobID,
		Status:    h.Status,
		Message:   h.Message,
		Timestamp: h.Timestamp,
		IsAdmin:   h.IsAdmin,
	}
}

func toDomainHistory(e HistoryEntity) model.HistoryEntry {
	return model.HistoryEntry{
		ID:        e.ID,
		JobID:     e.JobID,
		Status:    e.Status,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		IsAdmin:   e.IsAdmin,
	}
}
