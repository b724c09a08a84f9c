package log

import (
	"io"
	"sync/atomic"

	"github.com/kataras/golog"
)

// GologLogger adapts a golog.Logger to Logger. Level checks happen here as
// well as in golog so Discard-like levels cost no formatting.
type GologLogger struct {
	g     *golog.Logger
	level atomic.Int32
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps g at info level.
func NewGologLogger(g *golog.Logger) *GologLogger {
	l := &GologLogger{g: g}
	l.SetLevel(LevelInfo)
	return l
}

// NewLogger returns a golog logger on stderr prefixed with "[ragflow]".
func NewLogger(level Level) *GologLogger {
	l := NewGologLogger(golog.New().SetPrefix("[ragflow] "))
	l.SetLevel(level)
	return l
}

// NewLoggerWithOutput writes to out without timestamps; used by tests and
// the CLI.
func NewLoggerWithOutput(out io.Writer, level Level) *GologLogger {
	g := golog.New()
	g.SetOutput(out)
	g.SetTimeFormat("")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l
}

func (l *GologLogger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.enabled(LevelDebug) {
		l.g.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.enabled(LevelInfo) {
		l.g.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.enabled(LevelWarn) {
		l.g.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.enabled(LevelError) {
		l.g.Errorf(format, v...)
	}
}

// SetLevel changes the level of l and of the underlying golog logger.
func (l *GologLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
	l.g.SetLevel(level.String())
}

// Level reports the current level.
func (l *GologLogger) Level() Level {
	return Level(l.level.Load())
}
