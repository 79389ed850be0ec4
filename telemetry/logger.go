package telemetry

import (
	"io"
	"log"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &loggerAdapter{logger: logger}
}

// Discard drops everything; tests use it to keep output quiet.
func Discard() Logger {
	return WrapLogger(log.New(io.Discard, "", 0))
}

// OrDefault returns logger, or the standard logger when it is nil.
func OrDefault(logger Logger) Logger {
	if logger == nil {
		return WrapLogger(log.Default())
	}
	return logger
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}
