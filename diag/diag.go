// Package diag routes the pipeline's diagnostic messages to a process-wide
// sink.
//
// The sink is registered once, before any concurrent compilation begins, and
// is frozen afterwards: Register follows a write-once pattern and all later
// calls are rejected. Reads are safe from any goroutine. This mirrors the
// "register the error handler exactly once, before jobs start" contract the
// embedding build system is expected to honor.
package diag

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Level classifies a diagnostic message.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// String returns the level name used in default sink output.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Sink receives leveled diagnostic text. Implementations must be safe for
// concurrent use; the pipeline may log from many compilation goroutines.
type Sink interface {
	Message(level Level, text string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(level Level, text string)

// Message implements Sink.
func (f SinkFunc) Message(level Level, text string) { f(level, text) }

type stderrSink struct{}

func (stderrSink) Message(level Level, text string) {
	log.Printf("%s: %s", level, text)
}

// holder gives atomic.Value a single concrete type to store; sinks of
// different dynamic types would otherwise make Store panic.
type holder struct {
	s Sink
}

var (
	sink       atomic.Value // holder
	registered atomic.Bool
)

func init() {
	sink.Store(holder{s: stderrSink{}})
}

// Register installs the process-wide sink. It succeeds exactly once; any
// later call returns an error and leaves the installed sink untouched.
// Callers must register before starting concurrent compilations.
func Register(s Sink) error {
	if s == nil {
		return fmt.Errorf("diag: nil sink")
	}
	if !registered.CompareAndSwap(false, true) {
		return fmt.Errorf("diag: sink already registered")
	}
	sink.Store(holder{s: s})
	return nil
}

func current() Sink {
	return sink.Load().(holder).s
}

// Errorf reports an error-level diagnostic.
func Errorf(format string, args ...any) {
	current().Message(LevelError, fmt.Sprintf(format, args...))
}

// Warningf reports a warning-level diagnostic.
func Warningf(format string, args ...any) {
	current().Message(LevelWarning, fmt.Sprintf(format, args...))
}

// Infof reports an info-level diagnostic.
func Infof(format string, args ...any) {
	current().Message(LevelInfo, fmt.Sprintf(format, args...))
}

// Debugf reports a debug-level diagnostic.
func Debugf(format string, args ...any) {
	current().Message(LevelDebug, fmt.Sprintf(format, args...))
}
