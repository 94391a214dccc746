// Package model holds the WAVES job domain types.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Job is one request to execute a service submission on a remote backend.
//
// Status and History are mutated through the state machine only; the other
// fields are written by the runner and the adaptors.
type Job struct {
	ID               string
	Slug             string
	Title            string
	Service          string
	Status           JobStatus
	History          []HistoryEntry
	NbRetry          int
	RemoteJobID      string
	RemoteHistoryID  string
	ExitCode         int
	CommandLine      string
	Adaptor          *AdaptorBinding
	WorkingDir       string
	Inputs           []JobInput
	Outputs          []JobOutput
	ResultsAvailable bool
	Notify           bool
	EmailTo          string

	// Message is the explanation attached to the next status transition. It is
	// consumed by the transition and never persisted.
	Message string

	LeaseOwner     string
	LeaseExpiresAt *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a job in CREATED state with fresh identifiers. History is left
// empty; the creation entry is appended by the state machine.
func NewJob(title, service string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Slug:      uuid.NewString(),
		Title:     title,
		Service:   service,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PublicHistory returns the entries visible to the job owner.
func (j *Job) PublicHistory() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(j.History))
	for _, h := range j.History {
		if !h.IsAdmin {
			out = append(out, h)
		}
	}
	return out
}

// LastHistory returns the latest entry, or nil when the job has none.
func (j *Job) LastHistory() *HistoryEntry {
	if len(j.History) == 0 {
		return nil
	}
	return &j.History[len(j.History)-1]
}

// FirstHistoryWith returns the first entry matching pred.
func (j *Job) FirstHistoryWith(pred func(HistoryEntry) bool) *HistoryEntry {
	for i := range j.History {
		if pred(j.History[i]) {
			return &j.History[i]
		}
	}
	return nil
}

// AllowRerun reports whether the job can be reset to CREATED.
func (j *Job) AllowRerun() bool {
	return j.Status != StatusCreated && j.Status != StatusUndefined
}

// Leased reports whether another owner holds a live lease at now.
func (j *Job) Leased(owner string, now time.Time) bool {
	return j.LeaseOwner != "" && j.LeaseOwner != owner && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.After(now)
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.History = append([]HistoryEntry(nil), j.History...)
	c.Inputs = append([]JobInput(nil), j.Inputs...)
	c.Outputs = append([]JobOutput(nil), j.Outputs...)
	if j.Adaptor != nil {
		b := j.Adaptor.Clone()
		c.Adaptor = &b
	}
	if j.LeaseExpiresAt != nil {
		t := *j.LeaseExpiresAt
		c.LeaseExpiresAt = &t
	}
	return &c
}

// HistoryEntry is one immutable (status, message, timestamp, visibility) record.
type HistoryEntry struct {
	ID        int64
	JobID     string
	Status    JobStatus
	Message   string
	Timestamp time.Time
	IsAdmin   bool
}

// InputType is the declared type of a job input.
type InputType string

const (
	InputFile    InputType = "file"
	InputText    InputType = "text"
	InputInt     InputType = "int"
	InputDecimal InputType = "decimal"
	InputBoolean InputType = "boolean"
	InputList    InputType = "list"
)

// CmdFormat controls how an input is rendered on the command line.
type CmdFormat string

const (
	// CmdSimple renders "-name value".
	CmdSimple CmdFormat = "simple"
	// CmdValuated renders "--name=value".
	CmdValuated CmdFormat = "valuated"
	// CmdOption renders "-name" when the value is true.
	CmdOption CmdFormat = "option"
	// CmdNamedOption renders "--name" when the value is true.
	CmdNamedOption CmdFormat = "named_option"
	// CmdPosix renders the bare value.
	CmdPosix CmdFormat = "posix"
	// CmdNone leaves the input off the command line.
	CmdNone CmdFormat = "none"
)

// JobInput is a materialized parameter binding.
type JobInput struct {
	Name      string    `json:"name" yaml:"name"`
	Label     string    `json:"label,omitempty" yaml:"label"`
	Value     string    `json:"value" yaml:"value"`
	Type      InputType `json:"type" yaml:"type"`
	CmdFormat CmdFormat `json:"cmd_format" yaml:"cmd_format"`
	Order     int       `json:"order" yaml:"order"`
}

// IsFile reports whether the input names a file staged in the working directory.
func (in JobInput) IsFile() bool {
	return in.Type == InputFile
}

// JobOutput is an expected result artifact. Value is a path relative to the
// working directory and may be a glob pattern.
type JobOutput struct {
	Name      string `json:"name" yaml:"name"`
	Value     string `json:"value" yaml:"value"`
	Extension string `json:"extension,omitempty" yaml:"extension"`
	Optional  bool   `json:"optional,omitempty" yaml:"optional"`
}
