package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("invalid graph configuration")

	// ErrIterationLimitExceeded is matched by IterationLimitError.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

	// ErrInvalidRoute is wrapped in a StepExecutionError when a router returns a
	// target outside of its declared set.
	ErrInvalidRoute = errors.New("router returned an undeclared target")

	// ErrStreamConsumed is returned when a Stream is iterated more than once.
	ErrStreamConsumed = errors.New("stream already consumed")

	// ErrNoCheckpoint is returned by Resume when a thread has no saved checkpoint.
	ErrNoCheckpoint = errors.New("no checkpoint for thread")
)

// ConfigurationError reports a malformed graph definition. It is detected
// before any node runs and is never retried.
type ConfigurationError struct {
	// Node is the node the problem was found on, if any.
	Node   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("graph configuration: node %q: %s", e.Node, e.Reason)
	}
	return "graph configuration: " + e.Reason
}

// Is makes errors.Is(err, ErrConfiguration) true.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(node, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// StepExecutionError is returned when a node function fails (error or panic) or
// when a router resolves to an undeclared target.
type StepExecutionError struct {
	Node string
	// Step is the 1-based invocation index within the thread.
	Step int
	Err  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("error in node %s (step %d): %v", e.Node, e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// IterationLimitError is returned when a run would exceed its recursion limit.
type IterationLimitError struct {
	Limit int
	// Next is the node that would have been invoked.
	Next string
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit of %d steps reached before node %s", e.Limit, e.Next)
}

// Is makes errors.Is(err, ErrIterationLimitExceeded) true.
func (e *IterationLimitError) Is(target error) bool {
	return target == ErrIterationLimitExceeded
}
