package logger

import (
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormWriter routes GORM log output to Debugf.
type GormWriter struct{}

// Printf implements gorm's logger.Writer.
func (GormWriter) Printf(format string, v ...interface{}) {
	Debugf(format, v...)
}

// NewGormLogger returns a GORM logger matching the given level name.
func NewGormLogger(level string) gormlogger.Interface {
	lvl := gormlogger.Warn
	switch level {
	case "DEBUG":
		lvl = gormlogger.Info
	case "ERROR":
		lvl = gormlogger.Error
	case "SILENT":
		lvl = gormlogger.Silent
	}
	return gormlogger.New(GormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
