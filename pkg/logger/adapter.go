package logger

import (
	"go.uber.org/zap"
)

// LoggerAdapter pairs the console logger with the categorized file
// logs. A nil multi-logger sends everything to the console logger.
type LoggerAdapter struct {
	multiLogger  *MultiLogger
	singleLogger *zap.Logger
}

// NewLoggerAdapter creates a new logger adapter
func NewLoggerAdapter(general *zap.Logger, multiLogger *MultiLogger) *LoggerAdapter {
	if general == nil {
		general = zap.NewNop()
	}
	return &LoggerAdapter{
		multiLogger:  multiLogger,
		singleLogger: general,
	}
}

// NewNopAdapter creates an adapter that discards everything
func NewNopAdapter() *LoggerAdapter {
	return NewLoggerAdapter(zap.NewNop(), nil)
}

// General returns the console logger
func (la *LoggerAdapter) General() *zap.Logger {
	return la.singleLogger
}

// Acquisition returns the acquisition lifecycle logger
func (la *LoggerAdapter) Acquisition() *zap.Logger {
	if la.multiLogger != nil {
		return la.multiLogger.Acquisition()
	}
	return la.singleLogger
}

// LogEvent logs a lifecycle event to the console and the acquisition log
func (la *LoggerAdapter) LogEvent(msg string, fields ...zap.Field) {
	la.singleLogger.Info(msg, fields...)
	if la.multiLogger != nil {
		la.multiLogger.LogAcquisitionEvent(msg, fields...)
	}
}

// LogError logs an error to the console and the error log
func (la *LoggerAdapter) LogError(msg string, fields ...zap.Field) {
	la.singleLogger.Error(msg, fields...)
	if la.multiLogger != nil {
		la.multiLogger.LogAppError(msg, fields...)
	}
}

// Sync flushes all loggers
func (la *LoggerAdapter) Sync() error {
	if la.multiLogger != nil {
		la.multiLogger.Sync()
	}
	return la.singleLogger.Sync()
}
