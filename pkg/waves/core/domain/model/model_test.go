package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

func TestStatusNamesAndOrdering(t *testing.T) {
	assert.Equal(t, "Prepared", model.StatusPrepared.String())
	assert.Equal(t, "Undefined", model.StatusUndefined.String())
	assert.Equal(t, "JobStatus(42)", model.JobStatus(42).String())
	assert.True(t, model.StatusCreated < model.StatusPrepared)
	assert.True(t, model.StatusSuspended < model.StatusCompleted)
	assert.True(t, model.StatusUndefined < model.StatusCreated)
	assert.Len(t, model.AllStatuses, 11)
}

func TestParseJobStatus(t *testing.T) {
	s, err := model.ParseJobStatus("running")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, s)

	s, err = model.ParseJobStatus("-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUndefined, s)

	_, err = model.ParseJobStatus("exploded")
	assert.Error(t, err)
}

func TestIsFinal(t *testing.T) {
	for _, s := range model.AllStatuses {
		want := s == model.StatusTerminated || s == model.StatusCancelled || s == model.StatusWarning || s == model.StatusError
		assert.Equal(t, want, s.IsFinal(), s.String())
	}
}

func TestPublicHistoryAndAllowRerun(t *testing.T) {
	job := model.NewJob("blast", "blast")
	job.History = []model.HistoryEntry{
		{Status: model.StatusCreated, Message: "Job created", IsAdmin: true},
		{Status: model.StatusPrepared, Message: "New job status Prepared"},
	}
	pub := job.PublicHistory()
	require.Len(t, pub, 1)
	assert.Equal(t, model.StatusPrepared, pub[0].Status)
	assert.Equal(t, model.StatusPrepared, job.LastHistory().Status)

	assert.False(t, job.AllowRerun())
	job.Status = model.StatusError
	assert.True(t, job.AllowRerun())
}

func TestLeased(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	job := model.NewJob("t", "s")
	assert.False(t, job.Leased("me", now))

	job.LeaseOwner = "other"
	job.LeaseExpiresAt = &future
	assert.True(t, job.Leased("me", now))
	assert.False(t, job.Leased("other", now))
	assert.False(t, job.Leased("me", future.Add(time.Second)))
}

func TestCloneIsDeep(t *testing.T) {
	job := model.NewJob("t", "s")
	job.History = []model.HistoryEntry{{Status: model.StatusCreated}}
	job.Adaptor = &model.AdaptorBinding{Kind: "local-shell", Version: 1, Params: json.RawMessage(`{"command":"echo"}`)}

	c := job.Clone()
	c.History[0].Message = "changed"
	c.Adaptor.Params[2] = 'X'

	assert.Empty(t, job.History[0].Message)
	assert.Equal(t, `{"command":"echo"}`, string(job.Adaptor.Params))
}

func TestAdaptorBindingValueScan(t *testing.T) {
	b := model.AdaptorBinding{Kind: "ssh-shell", Version: 1, Params: json.RawMessage(`{"host":"h"}`)}
	v, err := b.Value()
	require.NoError(t, err)

	var back model.AdaptorBinding
	require.NoError(t, back.Scan(v))
	assert.True(t, b.Equal(back))

	require.NoError(t, back.Scan(nil))
	assert.Equal(t, "", back.Kind)
	assert.Error(t, back.Scan(42))
}
