// Package logging provides a leveled, scoped logging facade used across
// the stun, turn, mdns and ice packages so none of them depends directly
// on a concrete logging backend.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents a logging severity.
type LogLevel int

// Log levels from least to most verbose.
const (
	LogLevelDisabled LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDisabled:
		return "Disabled"
	case LogLevelError:
		return "Error"
	case LogLevelWarn:
		return "Warn"
	case LogLevelInfo:
		return "Info"
	case LogLevelDebug:
		return "Debug"
	case LogLevelTrace:
		return "Trace"
	default:
		return "Unknown"
	}
}

func levelFromString(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DISABLE", "DISABLED":
		return LogLevelDisabled
	case "ERROR":
		return LogLevelError
	case "WARN", "WARNING":
		return LogLevelWarn
	case "INFO":
		return LogLevelInfo
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// LeveledLogger is the per-scope logger handed out by a LoggerFactory.
type LeveledLogger interface {
	Trace(msg string)
	Tracef(format string, args ...interface{})
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
}

// LoggerFactory vends scoped LeveledLoggers, e.g. one per package ("ice",
// "stun", "turn").
type LoggerFactory interface {
	NewLogger(scope string) LeveledLogger
}

// DefaultLeveledLogger writes to an io.Writer guarded by a mutex, the
// module's one shared-resource log sink (spec.md §5).
type DefaultLeveledLogger struct {
	mu     sync.Mutex
	writer io.Writer
	level  LogLevel
	scope  string
	std    *log.Logger
}

func newDefaultLeveledLogger(scope string, level LogLevel, writer io.Writer) *DefaultLeveledLogger {
	return &DefaultLeveledLogger{
		writer: writer,
		level:  level,
		scope:  scope,
		std:    log.New(writer, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *DefaultLeveledLogger) logf(level LogLevel, tag string, format string, args ...interface{}) {
	if level > l.level || l.level == LogLevelDisabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s [%s] %s", tag, l.scope, msg)
}

// Trace logs at LogLevelTrace.
func (l *DefaultLeveledLogger) Trace(msg string) { l.logf(LogLevelTrace, "TRACE", "%s", msg) }

// Tracef logs at LogLevelTrace with formatting.
func (l *DefaultLeveledLogger) Tracef(format string, args ...interface{}) {
	l.logf(LogLevelTrace, "TRACE", format, args...)
}

// Debug logs at LogLevelDebug.
func (l *DefaultLeveledLogger) Debug(msg string) { l.logf(LogLevelDebug, "DEBUG", "%s", msg) }

// Debugf logs at LogLevelDebug with formatting.
func (l *DefaultLeveledLogger) Debugf(format string, args ...interface{}) {
	l.logf(LogLevelDebug, "DEBUG", format, args...)
}

// Info logs at LogLevelInfo.
func (l *DefaultLeveledLogger) Info(msg string) { l.logf(LogLevelInfo, "INFO", "%s", msg) }

// Infof logs at LogLevelInfo with formatting.
func (l *DefaultLeveledLogger) Infof(format string, args ...interface{}) {
	l.logf(LogLevelInfo, "INFO", format, args...)
}

// Warn logs at LogLevelWarn.
func (l *DefaultLeveledLogger) Warn(msg string) { l.logf(LogLevelWarn, "WARN", "%s", msg) }

// Warnf logs at LogLevelWarn with formatting.
func (l *DefaultLeveledLogger) Warnf(format string, args ...interface{}) {
	l.logf(LogLevelWarn, "WARN", format, args...)
}

// Error logs at LogLevelError.
func (l *DefaultLeveledLogger) Error(msg string) { l.logf(LogLevelError, "ERROR", "%s", msg) }

// Errorf logs at LogLevelError with formatting.
func (l *DefaultLeveledLogger) Errorf(format string, args ...interface{}) {
	l.logf(LogLevelError, "ERROR", format, args...)
}

// DefaultLoggerFactory vends DefaultLeveledLoggers configured from the
// ICE_LOG_LEVEL / ICE_LOG_<SCOPE> environment variables.
type DefaultLoggerFactory struct {
	Writer        io.Writer
	DefaultLevel  LogLevel
	ScopeLevels   map[string]LogLevel
}

// NewDefaultLoggerFactory builds a factory that writes to stderr and reads
// its levels from the environment, defaulting to Info.
func NewDefaultLoggerFactory() *DefaultLoggerFactory {
	f := &DefaultLoggerFactory{
		Writer:       os.Stderr,
		DefaultLevel: LogLevelInfo,
		ScopeLevels:  map[string]LogLevel{},
	}

	if env := os.Getenv("ICE_LOG_LEVEL"); env != "" {
		f.DefaultLevel = levelFromString(env)
	}

	for _, kv := range os.Environ() {
		const prefix = "ICE_LOG_"
		if !strings.HasPrefix(kv, prefix) || strings.HasPrefix(kv, prefix+"LEVEL=") {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		scope := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		f.ScopeLevels[scope] = levelFromString(parts[1])
	}

	return f
}

// NewLogger returns a LeveledLogger scoped to the given subsystem name.
func (f *DefaultLoggerFactory) NewLogger(scope string) LeveledLogger {
	level := f.DefaultLevel
	if l, ok := f.ScopeLevels[strings.ToLower(scope)]; ok {
		level = l
	}
	return newDefaultLeveledLogger(scope, level, f.Writer)
}
