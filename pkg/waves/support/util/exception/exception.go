// Package exception defines the WAVES error taxonomy and the helpers the
// orchestration layer uses to classify adaptor failures.
//
// Classification drives the retry policy:
//   - adaptor exceptions (not ready, connect, prepare, run, generic backend failure) are retryable;
//   - inconsistent state errors are propagated unchanged and never alter a job;
//   - known domain errors (WavesError of other kinds) put the job in error;
//   - anything else is unexpected and handled as fatal.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Kind identifies a class of WAVES error.
type Kind string

const (
	KindAdaptor              Kind = "AdaptorException"
	KindAdaptorNotReady      Kind = "AdaptorNotReady"
	KindAdaptorConnect       Kind = "AdaptorConnectException"
	KindAdaptorNotAvailable  Kind = "AdaptorNotAvailable"
	KindJobPrepare           Kind = "JobPrepareException"
	KindJobRun               Kind = "JobRunException"
	KindJobInconsistentState Kind = "JobInconsistentStateError"
	KindAdaptorLoad          Kind = "AdaptorLoadError"
	KindNotImplemented       Kind = "NotImplemented"
	KindWaves                Kind = "WavesException"
)

var adaptorFamily = map[Kind]bool{
	KindAdaptor:             true,
	KindAdaptorNotReady:     true,
	KindAdaptorConnect:      true,
	KindAdaptorNotAvailable: true,
	KindJobPrepare:          true,
	KindJobRun:              true,
}

// errorRegistry maps configured error names to sentinel errors compared with errors.Is.
var errorRegistry = make(map[string]error)

var registryMutex sync.RWMutex

// RegisterErrorType registers a named sentinel error so that configuration can
// refer to it (for example in jobs.retryable_errors).
// It panics on an empty name or a nil prototype.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is known to the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// WavesError is the error type produced by WAVES components.
type WavesError struct {
	// Module is the component that raised the error ("adaptor", "runner", "loader", ...).
	Module string
	// Kind classifies the error.
	Kind Kind
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// StackTrace is captured at creation for debugging.
	StackTrace string

	// Actual and Expected are filled for inconsistent state errors.
	Actual   string
	Expected string
	// Missing lists absent configuration parameters for AdaptorNotReady.
	Missing []string
}

func newError(module string, kind Kind, message string, originalErr error) *WavesError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return &WavesError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  string(buf[:n]),
	}
}

// Error implements the error interface.
func (e *WavesError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, e.Kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *WavesError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the error belongs to the adaptor exception family.
func (e *WavesError) IsRetryable() bool {
	return adaptorFamily[e.Kind]
}

// NewAdaptorError creates a generic, retryable backend failure.
func NewAdaptorError(module, message string, originalErr error) *WavesError {
	return newError(module, KindAdaptor, message, originalErr)
}

// NewAdaptorErrorf is NewAdaptorError with a format string. A trailing error
// argument becomes the wrapped cause.
func NewAdaptorErrorf(module, format string, a ...interface{}) *WavesError {
	var cause error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			cause = err
			a = a[:len(a)-1]
		}
	}
	return newError(module, KindAdaptor, fmt.Sprintf(format, a...), cause)
}

// NewAdaptorNotReady reports missing required configuration parameters.
func NewAdaptorNotReady(module string, missing []string) *WavesError {
	e := newError(module, KindAdaptorNotReady, fmt.Sprintf("Missing required parameter(s) for initialization: %s", strings.Join(missing, ", ")), nil)
	e.Missing = append([]string(nil), missing...)
	return e
}

// NewAdaptorConnectError reports a transport-level connection failure.
func NewAdaptorConnectError(module, message string, originalErr error) *WavesError {
	return newError(module, KindAdaptorConnect, message, originalErr)
}

// NewAdaptorNotAvailable reports an unreachable backend.
func NewAdaptorNotAvailable(module, message string, originalErr error) *WavesError {
	return newError(module, KindAdaptorNotAvailable, message, originalErr)
}

// NewJobPrepareError reports a staging failure.
func NewJobPrepareError(module, message string, originalErr error) *WavesError {
	return newError(module, KindJobPrepare, message, originalErr)
}

// NewJobRunError reports a submission failure.
func NewJobRunError(module, message string, originalErr error) *WavesError {
	return newError(module, KindJobRun, message, originalErr)
}

// NewAdaptorLoadError reports an adaptor binding that cannot be turned into an adaptor.
func NewAdaptorLoadError(module, message string, originalErr error) *WavesError {
	return newError(module, KindAdaptorLoad, message, originalErr)
}

// NewNotImplemented reports a capability the backend does not offer.
func NewNotImplemented(module, capability string) *WavesError {
	return newError(module, KindNotImplemented, capability+" is not implemented for this adaptor", nil)
}

// NewWavesError creates a known, non retryable domain error.
func NewWavesError(module, message string, originalErr error) *WavesError {
	return newError(module, KindWaves, message, originalErr)
}

// NewJobInconsistentState reports an operation invoked out of sequence.
// actual and expected are status display names (expected may be a condition such as "<= Created").
func NewJobInconsistentState(module, actual, expected string) *WavesError {
	e := newError(module, KindJobInconsistentState, fmt.Sprintf("Job is in an inconsistent state: %s, expected %s", actual, expected), nil)
	e.Actual = actual
	e.Expected = expected
	return e
}

// AsWavesError extracts a *WavesError from the chain.
func AsWavesError(err error) (*WavesError, bool) {
	var we *WavesError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	we, ok := AsWavesError(err)
	return ok && we.Kind == kind
}

// IsAdaptorException reports whether err is a retryable adaptor failure.
func IsAdaptorException(err error) bool {
	we, ok := AsWavesError(err)
	return ok && we.IsRetryable()
}

// IsInconsistentState reports whether err is a precondition violation.
func IsInconsistentState(err error) bool {
	return IsKind(err, KindJobInconsistentState)
}

// IsWavesError reports whether err is a known WAVES error that is neither
// retryable nor an inconsistent state.
func IsWavesError(err error) bool {
	we, ok := AsWavesError(err)
	return ok && !we.IsRetryable() && we.Kind != KindJobInconsistentState
}

// IsErrorOfType checks err against a registered name, a message substring or a
// Go type name (for example "*net.OpError"), walking the wrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		t := reflect.TypeOf(cur)
		if t != nil && (t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName)) {
			return true
		}
	}
	return false
}

// OptimisticLockingFailureException names a stale-version save.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure is the sentinel behind NewOptimisticLockingFailureException.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException creates a domain error wrapping ErrOptimisticLockingFailure.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *WavesError {
	cause := ErrOptimisticLockingFailure
	if originalErr != nil {
		cause = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return newError(module, KindWaves, message, cause)
}

// IsOptimisticLockingFailure reports whether err is a stale-version failure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the Message of a WavesError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if we, ok := AsWavesError(err); ok {
		if we.OriginalErr != nil && we.Kind != KindJobInconsistentState {
			return fmt.Sprintf("%s: %v", we.Message, we.OriginalErr)
		}
		return we.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}
