package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/listener/logging"
)

func TestOnTransition(t *testing.T) {
	l := logging.NewLoggingTransitionListener()
	for _, to := range []model.JobStatus{model.StatusPrepared, model.StatusError} {
		assert.NotPanics(t, func() {
			l.OnTransition(context.Background(), statemachine.TransitionEvent{Slug: "s", From: model.StatusCreated, To: to})
		})
	}
}
