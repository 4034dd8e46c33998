package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across the console client
type Logger interface {
	WithCorrelationID(id string) Logger
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	Info(msg string)
	Error(msg string, err error)
	Warn(msg string)
	Debug(msg string)
}

// Options controls where and how much the logger writes
type Options struct {
	Level  string
	Output io.Writer
}

// StructuredLogger implements Logger on top of logrus
type StructuredLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a JSON logger tagged with the given service name.
// An unknown level falls back to info; a nil Output means stderr.
func NewLogger(service string, opts Options) *StructuredLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return &StructuredLogger{entry: logger.WithField("service", service)}
}

// Discard returns a logger that drops everything; handy in tests
func Discard() Logger {
	return NewLogger("discard", Options{Level: "panic", Output: io.Discard})
}

func (l *StructuredLogger) WithCorrelationID(id string) Logger {
	return &StructuredLogger{entry: l.entry.WithField("correlation_id", id)}
}

func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return &StructuredLogger{entry: l.entry.WithFields(fields)}
}

func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return &StructuredLogger{entry: l.entry.WithField(key, value)}
}

func (l *StructuredLogger) Info(msg string) {
	l.entry.Info(msg)
}

// Error logs msg with the error text under the "error" field
func (l *StructuredLogger) Error(msg string, err error) {
	if err != nil {
		l.entry.WithField("error", err.Error()).Error(msg)
		return
	}
	l.entry.Error(msg)
}

func (l *StructuredLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *StructuredLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

type contextKey string

const loggerKey contextKey = "logger"

// WithContext stores a logger in ctx
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or fallback when none is set
func FromContext(ctx context.Context, fallback Logger) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return fallback
}
