package model

import (
	"fmt"
	"strings"
)

// JobStatus is the canonical, backend independent job status.
// The numeric values are ordered for precondition comparisons; StatusUndefined
// sits outside the chain and means "unknown or unreachable".
type JobStatus int

const (
	StatusUndefined  JobStatus = -1
	StatusCreated    JobStatus = 0
	StatusPrepared   JobStatus = 1
	StatusQueued     JobStatus = 2
	StatusRunning    JobStatus = 3
	StatusSuspended  JobStatus = 4
	StatusCompleted  JobStatus = 5
	StatusTerminated JobStatus = 6
	StatusCancelled  JobStatus = 7
	StatusWarning    JobStatus = 8
	StatusError      JobStatus = 9
)

var statusNames = map[JobStatus]string{
	StatusUndefined:  "Undefined",
	StatusCreated:    "Created",
	StatusPrepared:   "Prepared",
	StatusQueued:     "Queued",
	StatusRunning:    "Running",
	StatusSuspended:  "Suspended",
	StatusCompleted:  "Completed",
	StatusTerminated: "Terminated",
	StatusCancelled:  "Cancelled",
	StatusWarning:    "Warning",
	StatusError:      "Error",
}

// AllStatuses lists every canonical status in numeric order.
var AllStatuses = []JobStatus{
	StatusUndefined, StatusCreated, StatusPrepared, StatusQueued, StatusRunning, StatusSuspended,
	StatusCompleted, StatusTerminated, StatusCancelled, StatusWarning, StatusError,
}

// PendingStatuses are the statuses a scheduler still has work for.
var PendingStatuses = []JobStatus{
	StatusCreated, StatusPrepared, StatusQueued, StatusRunning, StatusSuspended, StatusUndefined, StatusCompleted,
}

// FinalStatuses are the statuses no automatic transition leaves.
var FinalStatuses = []JobStatus{
	StatusTerminated, StatusCancelled, StatusWarning, StatusError,
}

// String returns the display name of the status.
func (s JobStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// IsValid reports whether s is one of the canonical statuses.
func (s JobStatus) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsFinal reports whether no further automatic transition is expected.
func (s JobStatus) IsFinal() bool {
	switch s {
	case StatusTerminated, StatusCancelled, StatusWarning, StatusError:
		return true
	}
	return false
}

// ParseJobStatus resolves a display name (case-insensitive) or its numeric form.
func ParseJobStatus(name string) (JobStatus, error) {
	for s, n := range statusNames {
		if strings.EqualFold(n, name) || fmt.Sprint(int(s)) == name {
			return s, nil
		}
	}
	return StatusUndefined, fmt.Errorf("unknown job status %q", name)
}
