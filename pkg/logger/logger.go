// Package logger provides structured logging for the sentinel services.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	l := logrus.New()
	l.SetLevel(level)

	if os.Getenv("ENV") == "production" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: l}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithScan adds scan-specific fields to the logger
func (l *Logger) WithScan(scanID string) *logrus.Entry {
	return l.Logger.WithField("scan_id", scanID)
}

// Info logs an info message with structured fields
func (l *Logger) Info(msg string, fields ...Fields) {
	l.entry(fields).Info(msg)
}

// Warn logs a warning message with structured fields
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.entry(fields).Warn(msg)
}

// Error logs an error message with structured fields
func (l *Logger) Error(msg string, fields ...Fields) {
	l.entry(fields).Error(msg)
}

// Debug logs a debug message with structured fields
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.entry(fields).Debug(msg)
}

func (l *Logger) entry(fields []Fields) *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	for _, f := range fields {
		entry = entry.WithFields(logrus.Fields(f))
	}
	return entry
}

// Default logger instance
var defaultLogger = NewLogger(logrus.InfoLevel)

// Default returns the package-level logger
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}
