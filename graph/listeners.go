package graph

import (
	"context"
	"time"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed successfully
	NodeEventComplete NodeEvent = "complete"

	// NodeEventError indicates a node encountered an error
	NodeEventError NodeEvent = "error"
)

// RunStatus is the outcome of a run reported to listeners.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Listener observes a run. Calls are made synchronously on the goroutine
// executing the run, so implementations should return quickly.
type Listener interface {
	// OnNodeEvent is called around every node invocation. state is the merged
	// state for complete events and the input state otherwise.
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, step int, state any, err error)

	// OnRunEnd is called once when the run stops, with the number of steps run.
	OnRunEnd(ctx context.Context, status RunStatus, steps int, elapsed time.Duration, err error)
}

// ListenerFunc is a function adapter for Listener that ignores run-end events.
type ListenerFunc func(ctx context.Context, event NodeEvent, nodeName string, step int, state any, err error)

// OnNodeEvent implements the Listener interface
func (f ListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, step int, state any, err error) {
	f(ctx, event, nodeName, step, state, err)
}

// OnRunEnd implements the Listener interface
func (f ListenerFunc) OnRunEnd(context.Context, RunStatus, int, time.Duration, error) {}

type listeners []Listener

func (ls listeners) nodeEvent(ctx context.Context, event NodeEvent, nodeName string, step int, state any, err error) {
	for _, l := range ls {
		l.OnNodeEvent(ctx, event, nodeName, step, state, err)
	}
}

func (ls listeners) runEnd(ctx context.Context, steps int, elapsed time.Duration, err error) {
	status := RunSucceeded
	if err != nil {
		status = RunFailed
	}
	for _, l := range ls {
		l.OnRunEnd(ctx, status, steps, elapsed, err)
	}
}
