package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is a named, leveled wrapper around the standard library logger.
// Every component gets its own name so log lines can be traced back to
// the pipeline stage that emitted them.
type Logger struct {
	name   string
	logger *log.Logger
}

// New creates a Logger writing to stdout.
func New(name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// NewWithOutput creates a Logger writing to the given sink.
func NewWithOutput(name string, out io.Writer) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(out, "", log.LstdFlags),
	}
}

// Named returns a child logger sharing the same sink.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, logger: l.logger}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Printf("[%s] DEBUG: %s", l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Printf("[%s] INFO: %s", l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Printf("[%s] WARNING: %s", l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Printf("[%s] ERROR: %s", l.name, fmt.Sprintf(format, args...))
}
