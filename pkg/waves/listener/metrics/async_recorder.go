// Package metrics feeds accepted transitions to the MetricRecorder.
package metrics

import (
	"context"
	"sync"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/metrics"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

type transition struct {
	from, to model.JobStatus
}

// AsyncTransitionRecorder records transitions on a worker goroutine so that
// a slow metrics backend never delays a status change. Events are dropped
// when the queue is full.
type AsyncTransitionRecorder struct {
	eventQueue   chan transition
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncTransitionRecorder starts the worker. bufferSize <= 0 means 100.
func NewAsyncTransitionRecorder(bufferSize int, rec metrics.MetricRecorder) *AsyncTransitionRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncTransitionRecorder{
		eventQueue:   make(chan transition, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: rec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncTransitionRecorder: worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncTransitionRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.eventQueue:
			r.syncRecorder.RecordTransition(context.Background(), e.from, e.to)
		case <-r.stopCh:
			for {
				select {
				case e := <-r.eventQueue:
					r.syncRecorder.RecordTransition(context.Background(), e.from, e.to)
				default:
					return
				}
			}
		}
	}
}

func (r *AsyncTransitionRecorder) OnTransition(ctx context.Context, e statemachine.TransitionEvent) {
	select {
	case r.eventQueue <- transition{from: e.From, to: e.To}:
	default:
		logger.Warnf("AsyncTransitionRecorder: queue full, dropping %s -> %s of job %s", e.From, e.To, e.Slug)
	}
}

// Close drains the queue and stops the worker.
func (r *AsyncTransitionRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

var _ statemachine.TransitionListener = (*AsyncTransitionRecorder)(nil)
