// Package log is the leveled logger used across ragflow. The default backend is
// kataras/golog; any type implementing Logger can replace it.
package log

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Level is a logging severity. Messages below the configured level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone disables logging.
	LevelNone
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelNone:  "disable",
}

// String returns the golog name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name such as "debug" or "WARN" into a Level.
// The empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "none", "off", "disable":
		return LevelNone, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is a printf-style leveled logger.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// Discard drops every message.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// WithPrefix returns a logger that writes through l with "[prefix] " in front
// of every message. A nil l resolves to the package logger on every call, so
// SetLevel and SetDefaultLogger still apply afterwards.
func WithPrefix(l Logger, prefix string) Logger {
	return prefixed{base: l, prefix: "[" + prefix + "] "}
}

type prefixed struct {
	base   Logger
	prefix string
}

func (p prefixed) logger() Logger {
	if p.base == nil {
		return GetDefaultLogger()
	}
	return p.base
}

func (p prefixed) Debug(format string, v ...any) { p.logger().Debug(p.prefix+format, v...) }
func (p prefixed) Info(format string, v ...any)  { p.logger().Info(p.prefix+format, v...) }
func (p prefixed) Warn(format string, v ...any)  { p.logger().Warn(p.prefix+format, v...) }
func (p prefixed) Error(format string, v ...any) { p.logger().Error(p.prefix+format, v...) }

type holder struct{ Logger }

var defaultLogger atomic.Pointer[holder]

func init() {
	SetDefaultLogger(NewLogger(LevelInfo))
}

// SetDefaultLogger replaces the package logger. nil installs Discard.
func SetDefaultLogger(l Logger) {
	if l == nil {
		l = Discard
	}
	defaultLogger.Store(&holder{l})
}

// GetDefaultLogger returns the package logger.
func GetDefaultLogger() Logger {
	return defaultLogger.Load().Logger
}

// SetLevel changes the level of the package logger when it supports levels,
// and otherwise replaces it with a golog logger at level.
func SetLevel(level Level) {
	if l, ok := GetDefaultLogger().(interface{ SetLevel(Level) }); ok {
		l.SetLevel(level)
		return
	}
	SetDefaultLogger(NewLogger(level))
}

func Debug(format string, v ...any) { GetDefaultLogger().Debug(format, v...) }
func Info(format string, v ...any)  { GetDefaultLogger().Info(format, v...) }
func Warn(format string, v ...any)  { GetDefaultLogger().Warn(format, v...) }
func Error(format string, v ...any) { GetDefaultLogger().Error(format, v...) }
