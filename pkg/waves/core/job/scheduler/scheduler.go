// Package scheduler periodically selects the jobs with pending work and
// advances each of them by one operation.
package scheduler

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/retry"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// Advancer is the part of the job runner the scheduler drives.
type Advancer interface {
	PendingJobs(ctx context.Context, limit int) ([]*model.Job, error)
	Advance(ctx context.Context, jobID string, op statemachine.Operation) (*model.Job, error)
	Policy() retry.RetryPolicy
}

// Settings configure the tick loop.
type Settings struct {
	PollingInterval time.Duration
	Workers         int
	BatchSize       int
}

const (
	defaultPollingInterval = 10 * time.Second
	defaultWorkers         = 4
	defaultBatchSize       = 100
)

type backoff struct {
	failures int
	until    time.Time
}

type task struct {
	jobID string
	op    statemachine.Operation
}

// Scheduler runs ticks until stopped. A tick never advances the same job twice.
type Scheduler struct {
	runner   Advancer
	settings Settings
	now      func() time.Time

	mu      sync.Mutex
	backoff map[string]backoff

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Zero settings take the defaults.
func New(runner Advancer, settings Settings, opts ...Option) *Scheduler {
	if settings.PollingInterval <= 0 {
		settings.PollingInterval = defaultPollingInterval
	}
	if settings.Workers <= 0 {
		settings.Workers = defaultWorkers
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaultBatchSize
	}
	s := &Scheduler{
		runner:   runner,
		settings: settings,
		now:      time.Now,
		backoff:  make(map[string]backoff),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Settings returns the effective settings.
func (s *Scheduler) Settings() Settings { return s.settings }

// Start launches the tick loop in the background. The loop ends when ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	logger.Infof("Scheduler started (interval %s, %d workers, batch %d)", s.settings.PollingInterval, s.settings.Workers, s.settings.BatchSize)
}

// Stop ends the loop and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Infof("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.settings.PollingInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			logger.Errorf("Scheduler tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick advances every pending job that is not backing off and returns how
// many were dispatched. Only the job selection can fail; per job errors are
// logged.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	jobs, err := s.runner.PendingJobs(ctx, s.settings.BatchSize)
	if err != nil {
		return 0, err
	}
	now := s.now()
	tasks := s.plan(jobs, now)
	if len(tasks) == 0 {
		return 0, nil
	}
	logger.Debugf("Scheduler tick: %d pending, %d to advance", len(jobs), len(tasks))

	queue := make(chan task)
	var wg sync.WaitGroup
	workers := s.settings.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				s.advance(ctx, t)
			}
		}()
	}

	dispatched := 0
feed:
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case queue <- t:
			dispatched++
		}
	}
	close(queue)
	wg.Wait()
	return dispatched, nil
}

// plan picks the next operation of each job, skipping jobs in backoff, and
// forgets the backoff of jobs that are no longer pending.
func (s *Scheduler) plan(jobs []*model.Job, now time.Time) []task {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[string]bool, len(jobs))
	var tasks []task
	for _, job := range jobs {
		pending[job.ID] = true
		op, ok := statemachine.NextOperation(job.Status)
		if !ok {
			continue
		}
		if b, found := s.backoff[job.ID]; found && now.Before(b.until) {
			logger.Debugf("Job %s backing off until %s", job.Slug, b.until.Format(time.RFC3339))
			continue
		}
		tasks = append(tasks, task{jobID: job.ID, op: op})
	}
	for id := range s.backoff {
		if !pending[id] {
			delete(s.backoff, id)
		}
	}
	return tasks
}

func (s *Scheduler) advance(ctx context.Context, t task) {
	job, err := s.runner.Advance(ctx, t.jobID, t.op)
	switch {
	case err == nil:
	case exception.IsInconsistentState(err):
		// Another worker moved or holds the job.
		logger.Debugf("Job %s: %s skipped: %v", t.jobID, t.op, err)
		return
	default:
		logger.Errorf("Job %s: %s failed: %v", t.jobID, t.op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.backoff[t.jobID]
	retrying := job != nil && job.NbRetry > 0 && !job.Status.IsFinal()
	if err == nil && !retrying {
		delete(s.backoff, t.jobID)
		return
	}
	b.failures++
	if job != nil && job.NbRetry > b.failures {
		b.failures = job.NbRetry
	}
	b.until = s.now().Add(s.runner.Policy().GetBackoffInterval(b.failures))
	s.backoff[t.jobID] = b
}
