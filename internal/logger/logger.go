package logger

import (
	"log"
	"strings"
	"sync"
)

// Level represents a log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel Level = LevelInfo
	mu           sync.RWMutex
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
// Unknown values fall back to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// SetLevel sets the global log level from a string.
func SetLevel(level string) {
	lvl := ParseLevel(level)

	mu.Lock()
	currentLevel = lvl
	mu.Unlock()

	log.Printf("[INFO] Log level set to: %s", lvl)
}

// GetLevel returns the active global level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	logf(LevelDebug, "", format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logf(LevelInfo, "", format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logf(LevelWarn, "", format, args...)
}

// Errorf logs an error message. Errors are never filtered.
func Errorf(format string, args ...interface{}) {
	logf(LevelError, "", format, args...)
}

// Logger prefixes every line with a component name.
type Logger struct {
	component string
}

// Named returns a Logger that tags its lines with component.
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	logf(LevelDebug, l.component, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	logf(LevelInfo, l.component, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	logf(LevelWarn, l.component, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	logf(LevelError, l.component, format, args...)
}

func logf(level Level, component, format string, args ...interface{}) {
	if level != LevelError && GetLevel() > level {
		return
	}
	prefix := "[" + strings.ToUpper(level.String()) + "] "
	if component != "" {
		prefix += component + ": "
	}
	log.Printf(prefix+format, args...)
}
