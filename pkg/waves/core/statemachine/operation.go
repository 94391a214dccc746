package statemachine

import (
	"fmt"
	"strings"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

// Operation is an orchestration step that can be invoked on a job.
type Operation string

const (
	OpPrepare      Operation = "prepare"
	OpRun          Operation = "run"
	OpCancel       Operation = "cancel"
	OpPoll         Operation = "poll"
	OpFetchResults Operation = "fetch_results"
	OpRunDetails   Operation = "run_details"
)

// Operations lists the operations accepted by Advance.
var Operations = []Operation{OpPrepare, OpRun, OpCancel, OpPoll, OpFetchResults}

// ParseOperation resolves an operation name. "status" and "results" are
// accepted as aliases of poll and fetch_results.
func ParseOperation(name string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "prepare":
		return OpPrepare, nil
	case "run", "launch":
		return OpRun, nil
	case "cancel":
		return OpCancel, nil
	case "poll", "status":
		return OpPoll, nil
	case "fetch_results", "results":
		return OpFetchResults, nil
	}
	return "", fmt.Errorf("unknown operation %q (expected one of prepare, run, cancel, poll, fetch_results)", name)
}

// precondition is the status requirement of one operation.
type precondition struct {
	expected string
	accept   func(model.JobStatus) bool
}

var preconditions = map[Operation]precondition{
	OpPrepare: {
		expected: "<= " + model.StatusCreated.String(),
		accept:   func(s model.JobStatus) bool { return s <= model.StatusCreated },
	},
	OpRun: {
		expected: model.StatusPrepared.String(),
		accept:   func(s model.JobStatus) bool { return s == model.StatusPrepared },
	},
	OpCancel: {
		expected: "<= " + model.StatusSuspended.String(),
		accept:   func(s model.JobStatus) bool { return s <= model.StatusSuspended },
	},
	OpPoll: {
		expected: "one of Queued, Running, Suspended, Undefined",
		accept: func(s model.JobStatus) bool {
			return s == model.StatusUndefined || (s >= model.StatusQueued && s <= model.StatusSuspended)
		},
	},
	OpFetchResults: {
		expected: "one of Completed, Terminated, Warning",
		accept: func(s model.JobStatus) bool {
			return s == model.StatusCompleted || s == model.StatusTerminated || s == model.StatusWarning
		},
	},
	OpRunDetails: {
		expected: "any",
		accept:   func(model.JobStatus) bool { return true },
	},
}

// Guard fails with a JobInconsistentState error when job is not in a status
// accepted by op. It never touches the job.
func Guard(job *model.Job, op Operation) error {
	pre, ok := preconditions[op]
	if !ok {
		return exception.NewWavesError(module, fmt.Sprintf("unknown operation %q", op), nil)
	}
	if !pre.accept(job.Status) {
		return exception.NewJobInconsistentState(module, job.Status.String(), pre.expected)
	}
	return nil
}

// NextOperation returns the operation a scheduler should apply to a job in
// status s, or false when nothing is pending.
func NextOperation(s model.JobStatus) (Operation, bool) {
	switch s {
	case model.StatusCreated:
		return OpPrepare, true
	case model.StatusPrepared:
		return OpRun, true
	case model.StatusQueued, model.StatusRunning, model.StatusSuspended, model.StatusUndefined:
		return OpPoll, true
	case model.StatusCompleted:
		return OpFetchResults, true
	}
	return "", false
}
