// Package retry holds the retry budget applied by the job runner to adaptor failures.
package retry

import (
	"math"
	"time"

	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

// RetryPolicy decides whether a failure is retried and when the budget is spent.
type RetryPolicy interface {
	// ShouldRetry reports whether err is a recoverable adaptor failure.
	ShouldRetry(err error) bool
	// Exhausted reports whether a job that already retried nbRetry times must
	// escalate on its next recoverable failure.
	Exhausted(nbRetry int) bool
	// GetMaxAttempts returns the retry budget.
	GetMaxAttempts() int
	// GetBackoffInterval returns how long a scheduler waits before advancing a
	// job again after its attempt-th consecutive failure (attempt starts at 1).
	GetBackoffInterval(attempt int) time.Duration
}

// Settings are the policy parameters, usually taken from the jobs configuration.
type Settings struct {
	MaxRetry        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Factor          float64
	// RetryableErrors names extra error types (see exception.IsErrorOfType)
	// treated like adaptor exceptions.
	RetryableErrors []string
}

// DefaultRetryPolicyFactory builds RetryPolicy instances.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create builds a policy from settings. A MaxRetry below 1 is raised to 1 so
// the first recoverable failure escalates.
func (f *DefaultRetryPolicyFactory) Create(s Settings) RetryPolicy {
	if s.MaxRetry < 1 {
		s.MaxRetry = 1
	}
	if s.Factor < 1 {
		s.Factor = 1
	}
	return &defaultRetryPolicy{settings: s}
}

type defaultRetryPolicy struct {
	settings Settings
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.settings.MaxRetry
}

func (p *defaultRetryPolicy) Exhausted(nbRetry int) bool {
	return nbRetry+1 >= p.settings.MaxRetry
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if exception.IsInconsistentState(err) {
		return false
	}
	if exception.IsAdaptorException(err) {
		return true
	}
	for _, name := range p.settings.RetryableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// GetBackoffInterval grows InitialInterval by Factor per attempt, capped at MaxInterval.
func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 || p.settings.InitialInterval <= 0 {
		return 0
	}
	d := float64(p.settings.InitialInterval) * math.Pow(p.settings.Factor, float64(attempt-1))
	if p.settings.MaxInterval > 0 && d > float64(p.settings.MaxInterval) {
		return p.settings.MaxInterval
	}
	return time.Duration(d)
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
