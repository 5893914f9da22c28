package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields represents key-value pairs for structured logging
type Fields map[string]interface{}

// Logger defines the interface for logging operations
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields Fields) Logger
}

// entryLogger adapts a logrus entry so that fields survive WithFields chains
type entryLogger struct {
	*logrus.Entry
}

// WithFields returns a new logger carrying the given fields
func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// ensure entryLogger implements Logger interface
var _ Logger = (*entryLogger)(nil)

// New creates a JSON logger writing to stdout
func New(level string) Logger {
	return NewWithOutput(level, os.Stdout)
}

// NewWithOutput creates a JSON logger writing to output
func NewWithOutput(level string, output io.Writer) Logger {
	logrusLogger := logrus.New()
	logrusLogger.SetOutput(output)
	logrusLogger.SetFormatter(&logrus.JSONFormatter{})
	logrusLogger.SetLevel(parseLevel(level))

	return &entryLogger{Entry: logrus.NewEntry(logrusLogger)}
}

// NewLogrusLogger creates a logger from an existing logrus.Logger instance
func NewLogrusLogger(logrusLogger *logrus.Logger) Logger {
	return &entryLogger{Entry: logrus.NewEntry(logrusLogger)}
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
