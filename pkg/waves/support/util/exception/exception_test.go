package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

func TestClassification(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name         string
		err          error
		adaptor      bool
		inconsistent bool
		waves        bool
	}{
		{"generic adaptor", exception.NewAdaptorError("shell", "submit failed", cause), true, false, false},
		{"not ready", exception.NewAdaptorNotReady("shell", []string{"host"}), true, false, false},
		{"connect", exception.NewAdaptorConnectError("ssh", "dial", cause), true, false, false},
		{"prepare", exception.NewJobPrepareError("shell", "upload", cause), true, false, false},
		{"run", exception.NewJobRunError("shell", "submit", cause), true, false, false},
		{"inconsistent", exception.NewJobInconsistentState("runner", "Completed", "<= Suspended"), false, true, false},
		{"load", exception.NewAdaptorLoadError("loader", "unknown kind", nil), false, false, true},
		{"domain", exception.NewWavesError("runner", "No Adaptor, impossible to run", nil), false, false, true},
		{"plain", cause, false, false, false},
		{"wrapped adaptor", fmt.Errorf("wrap: %w", exception.NewAdaptorError("api", "503", nil)), true, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.adaptor, exception.IsAdaptorException(tc.err))
			assert.Equal(t, tc.inconsistent, exception.IsInconsistentState(tc.err))
			assert.Equal(t, tc.waves, exception.IsWavesError(tc.err))
		})
	}
}

func TestAdaptorNotReadyListsMissingParams(t *testing.T) {
	err := exception.NewAdaptorNotReady("shell", []string{"command", "host"})
	assert.Equal(t, []string{"command", "host"}, err.Missing)
	assert.Contains(t, err.Error(), "command, host")
}

func TestInconsistentStateCarriesStatuses(t *testing.T) {
	err := exception.NewJobInconsistentState("statemachine", "Completed", "<= Suspended")
	we, ok := exception.AsWavesError(err)
	assert.True(t, ok)
	assert.Equal(t, "Completed", we.Actual)
	assert.Equal(t, "<= Suspended", we.Expected)
}

func TestIsErrorOfType(t *testing.T) {
	err := fmt.Errorf("poll: %w", context.DeadlineExceeded)
	assert.True(t, exception.IsErrorOfType(err, "context.DeadlineExceeded"))
	assert.True(t, exception.IsErrorOfType(err, "deadline exceeded"))
	assert.False(t, exception.IsErrorOfType(err, "sql.ErrNoRows"))
	assert.False(t, exception.IsErrorOfType(nil, "context.Canceled"))
}

func TestOptimisticLockingFailure(t *testing.T) {
	err := exception.NewOptimisticLockingFailureException("repository", "stale job", nil)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.False(t, exception.IsAdaptorException(err))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "submit failed: boom", exception.ExtractErrorMessage(exception.NewAdaptorError("shell", "submit failed", errors.New("boom"))))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
