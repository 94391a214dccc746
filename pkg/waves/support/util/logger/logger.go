// Package logger provides the leveled logging utility used across WAVES.
// It keeps a small printf-style API and delegates output to a zap sugared logger.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelSilent disables all output.
	LevelSilent
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	format   = "text"
	atom     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar    = build(format)
)

func build(f string) *zap.SugaredLogger {
	var enc zapcore.Encoder
	if f == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)
	return zap.New(core).Sugar()
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "SILENT" (case-insensitive).
// An unknown value falls back to INFO.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = LevelDebug
		atom.SetLevel(zapcore.DebugLevel)
	case "WARN", "WARNING":
		logLevel = LevelWarn
		atom.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		logLevel = LevelError
		atom.SetLevel(zapcore.ErrorLevel)
	case "SILENT":
		logLevel = LevelSilent
		atom.SetLevel(zapcore.FatalLevel + 1)
	case "INFO":
		logLevel = LevelInfo
		atom.SetLevel(zapcore.InfoLevel)
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel = LevelInfo
		atom.SetLevel(zapcore.InfoLevel)
	}
}

// ParseLevel resolves a level name (case-insensitive). Unknown names
// yield LevelInfo and false.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "SILENT":
		return LevelSilent, true
	}
	return LevelInfo, false
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// SetFormat switches the encoder between "text" (console) and "json".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	f = strings.ToLower(f)
	if f == format {
		return
	}
	_ = sugar.Sync()
	format = f
	sugar = build(f)
}

// GetLogLevel returns the current level.
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf outputs a message at error severity flagged as fatal.
// It does not terminate the process; callers decide how to surface the failure.
func Fatalf(format string, v ...interface{}) {
	current().With("fatal", true).Errorf(format, v...)
}

// With returns a logger carrying the given key/value pairs, for call sites that
// log several lines about the same job.
func With(kv ...interface{}) *zap.SugaredLogger {
	return current().With(kv...)
}
