package graph

import (
	"context"
	"time"

	"github.com/smallnest/ragflow/log"
)

// LoggingListener writes node and run events to a log.Logger.
type LoggingListener struct {
	logger log.Logger
}

// NewLoggingListener creates a listener for the graph called name. A nil logger
// follows the package logger of the log package.
func NewLoggingListener(logger log.Logger, name string) *LoggingListener {
	return &LoggingListener{logger: log.WithPrefix(logger, name)}
}

func (l *LoggingListener) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, step int, _ any, err error) {
	switch event {
	case NodeEventStart:
		l.logger.Debug("run=%s step=%d node=%s start", GetRunID(ctx), step, nodeName)
	case NodeEventComplete:
		l.logger.Info("run=%s step=%d node=%s complete", GetRunID(ctx), step, nodeName)
	case NodeEventError:
		l.logger.Error("run=%s step=%d node=%s failed: %v", GetRunID(ctx), step, nodeName, err)
	}
}

func (l *LoggingListener) OnRunEnd(ctx context.Context, status RunStatus, steps int, elapsed time.Duration, err error) {
	if err != nil {
		l.logger.Warn("run=%s %s after %d steps in %s: %v", GetRunID(ctx), status, steps, elapsed, err)
		return
	}
	l.logger.Info("run=%s %s after %d steps in %s", GetRunID(ctx), status, steps, elapsed)
}
