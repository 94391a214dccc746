package adaptor

import (
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// StatusTable maps a backend native status to a canonical status.
type StatusTable map[string]model.JobStatus

// Map returns the canonical status of native; unmapped values give UNDEFINED.
func (t StatusTable) Map(native string) model.JobStatus {
	if s, ok := t[native]; ok {
		return s
	}
	return model.StatusUndefined
}

// GenericStates is the job-service vocabulary used by the shell backends.
var GenericStates = StatusTable{
	"Unknown":   model.StatusUndefined,
	"New":       model.StatusCreated,
	"Pending":   model.StatusQueued,
	"Running":   model.StatusRunning,
	"Suspended": model.StatusSuspended,
	"Canceled":  model.StatusCancelled,
	"Done":      model.StatusCompleted,
	"Failed":    model.StatusError,
}

// SGEStates maps Grid Engine qstat codes. "done" and "failed" are reported
// from the exit code file once the job left the queue.
var SGEStates = StatusTable{
	"qw":     model.StatusQueued,
	"hqw":    model.StatusQueued,
	"t":      model.StatusQueued,
	"r":      model.StatusRunning,
	"s":      model.StatusSuspended,
	"S":      model.StatusSuspended,
	"ts":     model.StatusSuspended,
	"Eqw":    model.StatusError,
	"dr":     model.StatusCancelled,
	"dt":     model.StatusCancelled,
	"done":   model.StatusCompleted,
	"failed": model.StatusError,
}

// SlurmStates maps SLURM job states.
var SlurmStates = StatusTable{
	"PENDING":       model.StatusQueued,
	"CONFIGURING":   model.StatusQueued,
	"RUNNING":       model.StatusRunning,
	"COMPLETING":    model.StatusRunning,
	"SUSPENDED":     model.StatusSuspended,
	"COMPLETED":     model.StatusCompleted,
	"CANCELLED":     model.StatusCancelled,
	"FAILED":        model.StatusError,
	"TIMEOUT":       model.StatusError,
	"NODE_FAIL":     model.StatusError,
	"OUT_OF_MEMORY": model.StatusError,
	"done":          model.StatusCompleted,
	"failed":        model.StatusError,
}

// APIStates maps the public API job states.
var APIStates = StatusTable{
	"new":     model.StatusCreated,
	"queued":  model.StatusQueued,
	"running": model.StatusRunning,
	"paused":  model.StatusSuspended,
	"ok":      model.StatusCompleted,
	"error":   model.StatusError,
	"deleted": model.StatusCancelled,
}
