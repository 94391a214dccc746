package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/listener/notification"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func event() statemachine.TransitionEvent {
	return statemachine.TransitionEvent{
		JobID:     "id-1",
		Slug:      "slug-1",
		Title:     "Blast",
		From:      model.StatusRunning,
		To:        model.StatusCompleted,
		Message:   "New job status Completed",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNatsNotifierPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	l := notification.NewNotificationListener(notification.NewNatsNotifier(pub, "waves.jobs"))

	l.OnTransition(context.Background(), event())

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "waves.jobs.slug-1.status", pub.subjects[0])
	var got notification.StatusEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "Running", got.From)
	assert.Equal(t, "Completed", got.To)
	assert.Equal(t, "id-1", got.JobID)
	assert.True(t, got.Timestamp.Equal(event().Timestamp))
}

func TestPublishFailureDoesNotPanic(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	l := notification.NewNotificationListener(notification.NewNatsNotifier(pub, "waves.jobs"))
	assert.NotPanics(t, func() { l.OnTransition(context.Background(), event()) })
	assert.Len(t, pub.subjects, 1)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, notification.NewLogNotifier().Notify(context.Background(), notification.StatusEvent{Slug: "s"}))
}

func TestListenerOnMachine(t *testing.T) {
	pub := &recordingPublisher{}
	m := statemachine.New(statemachine.WithListeners(
		notification.NewNotificationListener(notification.NewNatsNotifier(pub, "waves.jobs"))))
	job := model.NewJob("t", "s")
	m.Init(job)

	changed, err := m.Transition(context.Background(), job, model.StatusPrepared, "")
	require.NoError(t, err)
	require.True(t, changed)
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "waves.jobs."+job.Slug+".status", pub.subjects[0])
}
