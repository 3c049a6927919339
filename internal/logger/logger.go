// Package logger provides the leveled logger used across cdsfetch.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name such as "info" or "DEBUG".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// Logger writes "[cdsfetch]"-prefixed lines at or above a minimum level.
// It is safe for concurrent use.
type Logger struct {
	out   *log.Logger
	level Level
}

// New creates a Logger writing to w. A nil w writes to os.Stderr.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		out:   log.New(w, "[cdsfetch] ", log.Ldate|log.Ltime),
		level: level,
	}
}

func (l *Logger) logf(level Level, format string, v ...any) {
	if l == nil || level < l.level {
		return
	}
	l.out.Printf(level.String()+" "+format, v...)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, v ...any) { l.logf(LevelDebug, format, v...) }

// Info logs at info level.
func (l *Logger) Info(format string, v ...any) { l.logf(LevelInfo, format, v...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, v ...any) { l.logf(LevelWarn, format, v...) }

// Error logs at error level.
func (l *Logger) Error(format string, v ...any) { l.logf(LevelError, format, v...) }
