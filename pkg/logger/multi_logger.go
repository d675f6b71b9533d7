package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryAcquisition LogCategory = "acquisition" // Session lifecycle events (JSON)
	CategoryError       LogCategory = "error"       // Application errors (JSON)
	CategoryProcess     LogCategory = "process"     // Raw downloader transcript (text)
)

// Categories lists every category that has a log file
var Categories = []LogCategory{CategoryAcquisition, CategoryError, CategoryProcess}

// ParseCategory validates a category name
func ParseCategory(s string) (LogCategory, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// MultiLogger provides categorized logging with separate output files.
// The process category is not a zap logger: downloader output is
// appended verbatim through WriteProcessLine.
type MultiLogger struct {
	loggers map[LogCategory]*zap.Logger
	config  MultiLoggerConfig
	mu      sync.RWMutex

	processMu   sync.Mutex
	processFile *os.File
	currentDate string // date of the open process file
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*zap.Logger),
		config:  config,
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	acquisitionLogger, err := ml.createStructuredLogger(CategoryAcquisition, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisition logger: %w", err)
	}
	ml.loggers[CategoryAcquisition] = acquisitionLogger

	errorLogger, err := ml.createStructuredLogger(CategoryError, zapcore.ErrorLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create error logger: %w", err)
	}
	ml.loggers[CategoryError] = errorLogger

	return ml, nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, level zapcore.Level) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	logPath := ml.categoryLogPath(category, time.Now())
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)
	return zap.New(core).With(zap.String("category", string(category))), nil
}

func (ml *MultiLogger) categoryLogPath(category LogCategory, date time.Time) string {
	return filepath.Join(ml.config.LogsDir, LogFileName(category, date))
}

// LogFileName is the dated file name of a category log
func LogFileName(category LogCategory, date time.Time) string {
	return fmt.Sprintf("%s-%s.log", category, date.Format("20060102"))
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Acquisition returns the acquisition logger (JSON format)
func (ml *MultiLogger) Acquisition() *zap.Logger {
	return ml.GetLogger(CategoryAcquisition)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogAcquisitionEvent logs a session lifecycle event with structured data
func (ml *MultiLogger) LogAcquisitionEvent(event string, fields ...zap.Field) {
	ml.Acquisition().Info(event, fields...)
}

// WriteProcessHeader starts a session block in the process transcript
func (ml *MultiLogger) WriteProcessHeader(sessionID, commandLine string) {
	ml.writeProcess(fmt.Sprintf("=== [%s] session %s\n$ %s\n",
		time.Now().Format(time.RFC3339), sessionID, commandLine))
}

// WriteProcessLine appends one raw downloader line to the transcript
func (ml *MultiLogger) WriteProcessLine(sessionID, line string) {
	ml.writeProcess(fmt.Sprintf("[%s] %s\n", shortID(sessionID), line))
}

// WriteProcessFooter closes a session block in the process transcript
func (ml *MultiLogger) WriteProcessFooter(sessionID string, exitCode int, detail string) {
	msg := fmt.Sprintf("=== [%s] session %s exited with code %d", time.Now().Format(time.RFC3339), sessionID, exitCode)
	if detail != "" {
		msg += ": " + detail
	}
	ml.writeProcess(msg + "\n\n")
}

func (ml *MultiLogger) writeProcess(s string) {
	ml.processMu.Lock()
	defer ml.processMu.Unlock()

	today := time.Now().Format("20060102")
	if ml.processFile == nil || ml.currentDate != today {
		if ml.processFile != nil {
			ml.processFile.Close()
			ml.processFile = nil
		}
		file, err := os.OpenFile(ml.categoryLogPath(CategoryProcess, time.Now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			ml.LogAppError("Failed to open process log", zap.Error(err))
			return
		}
		ml.processFile = file
		ml.currentDate = today
	}
	ml.processFile.WriteString(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes all loggers and closes the process transcript
func (ml *MultiLogger) Close() error {
	lastErr := ml.Sync()

	ml.processMu.Lock()
	defer ml.processMu.Unlock()
	if ml.processFile != nil {
		if err := ml.processFile.Close(); err != nil {
			lastErr = err
		}
		ml.processFile = nil
	}
	return lastErr
}
