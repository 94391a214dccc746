// Package joblog appends job status transitions to the job.log file of the
// job working directory.
package joblog

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// JobLogListener writes one line per transition at or above its level.
type JobLogListener struct {
	wd    *workdir.Manager
	level logger.LogLevel
}

// NewJobLogListener creates a listener writing under wd. An unknown level
// falls back to INFO.
func NewJobLogListener(wd *workdir.Manager, level string) *JobLogListener {
	lvl, ok := logger.ParseLevel(level)
	if !ok && level != "" {
		logger.Warnf("Unknown job log level '%s', using INFO.", level)
	}
	return &JobLogListener{wd: wd, level: lvl}
}

func (l *JobLogListener) OnTransition(_ context.Context, e statemachine.TransitionEvent) {
	lvl := logger.LevelInfo
	if e.To == model.StatusError || e.To == model.StatusCancelled {
		lvl = logger.LevelWarn
	}
	if lvl < l.level {
		return
	}
	job := &model.Job{ID: e.JobID, Slug: e.Slug, WorkingDir: e.WorkingDir}
	line := fmt.Sprintf("%s [%s] %s -> %s: %s", e.Timestamp.UTC().Format(time.RFC3339), lvl, e.From, e.To, e.Message)
	if err := l.wd.AppendLog(job, line); err != nil {
		logger.Warnf("Failed to append to the log of job %s: %v", e.Slug, err)
	}
}

var _ statemachine.TransitionListener = (*JobLogListener)(nil)
