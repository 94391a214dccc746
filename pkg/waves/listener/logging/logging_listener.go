// Package logging logs every accepted job status transition.
package logging

import (
	"context"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

type LoggingTransitionListener struct{}

func NewLoggingTransitionListener() *LoggingTransitionListener {
	return &LoggingTransitionListener{}
}

// OnTransition logs final failures at warn level and the rest at info.
func (l *LoggingTransitionListener) OnTransition(ctx context.Context, e statemachine.TransitionEvent) {
	if e.To == model.StatusError || e.To == model.StatusCancelled {
		logger.Warnf("TransitionListener: Job '%s' (%s) %s -> %s: %s", e.Title, e.Slug, e.From, e.To, e.Message)
		return
	}
	logger.Infof("TransitionListener: Job '%s' (%s) %s -> %s: %s", e.Title, e.Slug, e.From, e.To, e.Message)
}

var _ statemachine.TransitionListener = (*LoggingTransitionListener)(nil)
