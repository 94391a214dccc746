// Package statemachine owns every status change of a job. Callers never assign
// job.Status directly: they call Transition, which enforces the legal moves and
// appends exactly one history entry per accepted change.
package statemachine

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const module = "statemachine"

// CreatedMessage is the history message of a freshly created job.
const CreatedMessage = "Job created"

// TransitionEvent describes one accepted status change.
type TransitionEvent struct {
	JobID string
	Slug  string
	Title string
	// WorkingDir is the job working directory; empty when not yet assigned.
	WorkingDir string
	From       model.JobStatus
	To         model.JobStatus
	Message    string
	Timestamp  time.Time
}

// TransitionListener observes accepted transitions. Listeners run synchronously
// and must not mutate the job.
type TransitionListener interface {
	OnTransition(ctx context.Context, event TransitionEvent)
}

// Machine applies status transitions.
type Machine struct {
	now       func() time.Time
	listeners []TransitionListener
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithListeners registers transition listeners.
func WithListeners(l ...TransitionListener) Option {
	return func(m *Machine) { m.listeners = append(m.listeners, l...) }
}

// New creates a Machine.
func New(opts ...Option) *Machine {
	m := &Machine{now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddListener registers a listener after construction.
func (m *Machine) AddListener(l TransitionListener) {
	m.listeners = append(m.listeners, l)
}

// Init records the creation entry of a job in CREATED state.
func (m *Machine) Init(job *model.Job) {
	job.Status = model.StatusCreated
	m.Annotate(job, CreatedMessage)
}

// Annotate appends a public history entry carrying the current status.
func (m *Machine) Annotate(job *model.Job, message string) {
	m.append(job, job.Status, message, false)
}

// Transition moves job to status to.
//
// Setting the current status is a no-op that appends nothing. ERROR is always
// reachable. A job in a final status rejects any other target, and CREATED is
// only reachable through Reset. The history message is message, else
// job.Message, else "New job status <to>". job.Message is consumed either way.
// The returned bool reports whether the status changed.
func (m *Machine) Transition(ctx context.Context, job *model.Job, to model.JobStatus, message string) (bool, error) {
	if message == "" {
		message = job.Message
	}
	job.Message = ""

	if !to.IsValid() {
		return false, exception.NewWavesError(module, fmt.Sprintf("invalid target status %d", int(to)), nil)
	}
	from := job.Status
	if to == from {
		return false, nil
	}
	if to != model.StatusError {
		if from.IsFinal() {
			return false, exception.NewJobInconsistentState(module, from.String(), "a non final status")
		}
		if to == model.StatusCreated {
			return false, exception.NewJobInconsistentState(module, from.String(), "a job marked for re-run")
		}
	}
	if message == "" {
		message = fmt.Sprintf("New job status %s", to)
	}

	job.Status = to
	entry := m.append(job, to, message, false)
	logger.Debugf("JobHistory saved [%s][%s] status: %s", job.Slug, to, message)

	event := TransitionEvent{
		JobID:      job.ID,
		Slug:       job.Slug,
		Title:      job.Title,
		WorkingDir: job.WorkingDir,
		From:       from,
		To:         to,
		Message:    message,
		Timestamp:  entry.Timestamp,
	}
	for _, l := range m.listeners {
		l.OnTransition(ctx, event)
	}
	return true, nil
}

// Reset marks a job for re-run: every existing entry becomes admin-only, a
// "Marked for re-run" entry is added at the current status and the job returns
// to CREATED. The caller clears the run artifacts.
func (m *Machine) Reset(ctx context.Context, job *model.Job) error {
	if !job.AllowRerun() {
		return exception.NewJobInconsistentState(module, job.Status.String(), "a status other than Created or Undefined")
	}
	for i := range job.History {
		job.History[i].IsAdmin = true
	}
	m.Annotate(job, "Marked for re-run")

	from := job.Status
	job.Status = model.StatusCreated
	job.Message = ""
	message := fmt.Sprintf("New job status %s", model.StatusCreated)
	entry := m.append(job, model.StatusCreated, message, false)
	for _, l := range m.listeners {
		l.OnTransition(ctx, TransitionEvent{
			JobID: job.ID, Slug: job.Slug, Title: job.Title, WorkingDir: job.WorkingDir,
			From: from, To: model.StatusCreated, Message: message, Timestamp: entry.Timestamp,
		})
	}
	return nil
}

func (m *Machine) append(job *model.Job, status model.JobStatus, message string, admin bool) model.HistoryEntry {
	entry := model.HistoryEntry{
		JobID:     job.ID,
		Status:    status,
		Message:   message,
		Timestamp: m.now(),
		IsAdmin:   admin,
	}
	job.History = append(job.History, entry)
	return entry
}
