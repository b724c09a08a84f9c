package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.Equal(t, LevelInfo, logger.Level())

	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.Level())
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf, LevelError)

	logger.Debug("debug hidden")
	logger.Info("info hidden")
	logger.Warn("warn hidden")
	assert.Empty(t, buf.String())

	logger.Error("boom %d", 1)
	assert.Contains(t, buf.String(), "boom 1")

	buf.Reset()
	logger.SetLevel(LevelNone)
	logger.Error("silenced")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"", LevelInfo},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"off", LevelNone},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, "disable", LevelNone.String())
	assert.Equal(t, "level(9)", Level(9).String())
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithOutput(&buf, LevelDebug)

	WithPrefix(base, "self-rag").Info("step=%d node=%s", 2, "grade_documents")
	assert.Contains(t, buf.String(), "[self-rag] step=2 node=grade_documents")
}

func TestDefaultLogger(t *testing.T) {
	prev := GetDefaultLogger()
	t.Cleanup(func() { SetDefaultLogger(prev) })

	var buf bytes.Buffer
	SetDefaultLogger(NewLoggerWithOutput(&buf, LevelInfo))
	named := WithPrefix(nil, "crag")

	Info("hello %s", "world")
	Debug("hidden")
	assert.Contains(t, buf.String(), "hello world")
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel(LevelDebug)
	named.Debug("now visible")
	assert.Contains(t, buf.String(), "[crag] now visible")

	buf.Reset()
	SetDefaultLogger(nil)
	Error("nothing")
	named.Error("nothing either")
	assert.Empty(t, buf.String())
}
