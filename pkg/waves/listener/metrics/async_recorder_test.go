package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/listener/metrics"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordTransition(ctx context.Context, from, to model.JobStatus) {
	m.Called(from, to)
}
func (m *mockRecorder) RecordAdaptorCall(context.Context, string, string, string, time.Duration) {}
func (m *mockRecorder) RecordRetry(context.Context, string, string) {}
func (m *mockRecorder) RecordAdvance(context.Context, string, string, time.Duration) {}

func TestCloseDrainsQueue(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("RecordTransition", model.StatusCreated, model.StatusPrepared).Return().Times(3)

	r := metrics.NewAsyncTransitionRecorder(10, rec)
	for i := 0; i < 3; i++ {
		r.OnTransition(context.Background(), statemachine.TransitionEvent{From: model.StatusCreated, To: model.StatusPrepared})
	}
	r.Close()
	r.Close()

	rec.AssertExpectations(t)
}
