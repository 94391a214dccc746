package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events to the package logger.
// Successful wiring steps go to debug, failures to error.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates the adapter used by fx.WithLogger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("fx: starting %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		hookResult("start", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuting:
		Debugf("fx: stopping %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		hookResult("stop", e.FunctionName, e.Err)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", e.ConstructorName, e.Err)
			return
		}
		Debugf("fx: provided %s", strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		Infof("fx: received %s, shutting down", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Infof("wavesd started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: logger initialization failed: %v", e.Err)
		}
	}
}

func hookResult(phase, fn string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed: %v", phase, shortFuncName(fn), err)
		return
	}
	Debugf("fx: %s hook %s done", phase, shortFuncName(fn))
}

// shortFuncName trims the ".funcN" suffix fx reports for closures.
func shortFuncName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
