package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/retry"
	"github.com/tigerroll/waves/pkg/waves/core/job/scheduler"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

type fakeRunner struct {
	mu      sync.Mutex
	jobs    []*model.Job
	calls   map[string]statemachine.Operation
	results map[string]func(*model.Job) (*model.Job, error)
	policy  retry.RetryPolicy

	delay   time.Duration
	running int32
	peak    int32
}

func newFakeRunner(jobs ...*model.Job) *fakeRunner {
	return &fakeRunner{
		jobs:    jobs,
		calls:   make(map[string]statemachine.Operation),
		results: make(map[string]func(*model.Job) (*model.Job, error)),
		policy: retry.NewDefaultRetryPolicyFactory().Create(retry.Settings{
			MaxRetry: 3, InitialInterval: time.Minute, Factor: 2,
		}),
	}
}

func (f *fakeRunner) PendingJobs(context.Context, int) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Job(nil), f.jobs...), nil
}

func (f *fakeRunner) Advance(_ context.Context, id string, op statemachine.Operation) (*model.Job, error) {
	n := atomic.AddInt32(&f.running, 1)
	defer atomic.AddInt32(&f.running, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id] = op
	var job *model.Job
	for _, j := range f.jobs {
		if j.ID == id {
			job = j.Clone()
		}
	}
	if res, ok := f.results[id]; ok {
		return res(job)
	}
	return job, nil
}

func (f *fakeRunner) Policy() retry.RetryPolicy { return f.policy }

func (f *fakeRunner) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]statemachine.Operation)
}

func jobIn(status model.JobStatus) *model.Job {
	j := model.NewJob("t", "s")
	j.Status = status
	return j
}

func TestTickPicksNextOperation(t *testing.T) {
	created := jobIn(model.StatusCreated)
	prepared := jobIn(model.StatusPrepared)
	running := jobIn(model.StatusRunning)
	undefined := jobIn(model.StatusUndefined)
	completed := jobIn(model.StatusCompleted)
	done := jobIn(model.StatusTerminated)
	f := newFakeRunner(created, prepared, running, undefined, completed, done)

	n, err := scheduler.New(f, scheduler.Settings{Workers: 2}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, map[string]statemachine.Operation{
		created.ID:   statemachine.OpPrepare,
		prepared.ID:  statemachine.OpRun,
		running.ID:   statemachine.OpPoll,
		undefined.ID: statemachine.OpPoll,
		completed.ID: statemachine.OpFetchResults,
	}, f.calls)
}

func TestTickBoundsConcurrency(t *testing.T) {
	var jobs []*model.Job
	for i := 0; i < 12; i++ {
		jobs = append(jobs, jobIn(model.StatusRunning))
	}
	f := newFakeRunner(jobs...)
	f.delay = 10 * time.Millisecond

	n, err := scheduler.New(f, scheduler.Settings{Workers: 3}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&f.peak), int32(0))
}

func TestRetryingJobBacksOff(t *testing.T) {
	job := jobIn(model.StatusCreated)
	f := newFakeRunner(job)
	f.results[job.ID] = func(j *model.Job) (*model.Job, error) {
		j.NbRetry = 1
		return j, nil
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := scheduler.New(f, scheduler.Settings{}, scheduler.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	n, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.reset()
	now = now.Add(30 * time.Second)
	n, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "first backoff interval is one minute")

	now = now.Add(31 * time.Second)
	n, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFailedAdvanceBacksOffAndLostClaimDoesNot(t *testing.T) {
	failing := jobIn(model.StatusCreated)
	contended := jobIn(model.StatusRunning)
	f := newFakeRunner(failing, contended)
	f.results[failing.ID] = func(j *model.Job) (*model.Job, error) {
		j.Status = model.StatusError
		return j, exception.NewWavesError("runner", "boom", errors.New("boom"))
	}
	f.results[contended.ID] = func(*model.Job) (*model.Job, error) {
		return nil, exception.NewJobInconsistentState("runner", "claimed by another worker", "an unclaimed job")
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := scheduler.New(f, scheduler.Settings{}, scheduler.WithClock(func() time.Time { return now }))

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	f.reset()

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.calls, contended.ID)
	assert.NotContains(t, f.calls, failing.ID)
}

func TestStartStop(t *testing.T) {
	job := jobIn(model.StatusRunning)
	f := newFakeRunner(job)
	s := scheduler.New(f, scheduler.Settings{PollingInterval: 5 * time.Millisecond})

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.calls[job.ID] == statemachine.OpPoll
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestDefaults(t *testing.T) {
	s := scheduler.New(newFakeRunner(), scheduler.Settings{})
	assert.Equal(t, scheduler.Settings{PollingInterval: 10 * time.Second, Workers: 4, BatchSize: 100}, s.Settings())
}
