package graph

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// StepUpdate is what Stream yields after each node invocation.
type StepUpdate[S any] struct {
	// Node is the node that ran.
	Node string
	// Step is the 1-based invocation index within the thread.
	Step int
	// Update is the partial update returned by the node, before merging.
	Update S
	// Next is the node the run moves to (END when finished).
	Next string
}

// Stream is a lazy, single-use sequence of step updates. The run only advances
// when the consumer pulls the next update; no goroutine is started.
type Stream[S any] struct {
	runnable *StateRunnable[S]
	ctx      context.Context
	in       run[S]

	mu       sync.Mutex
	consumed bool
	final    S
	steps    int
	err      error
}

// Stream prepares a streaming execution of the graph. Nothing runs until
// Updates is iterated.
//
//	for upd, err := range app.Stream(ctx, initial, nil).Updates() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(upd.Node)
//	}
func (r *StateRunnable[S]) Stream(ctx context.Context, initialState S, config *Config) *Stream[S] {
	return r.stream(ctx, run[S]{state: initialState, start: r.graph.entryPoint, config: config})
}

func (r *StateRunnable[S]) stream(ctx context.Context, in run[S]) *Stream[S] {
	return &Stream[S]{runnable: r, ctx: ctx, in: in}
}

// Updates returns the step updates in invocation order. A run error is yielded
// last with a zero update. Iterating a second time yields ErrStreamConsumed.
func (s *Stream[S]) Updates() iter.Seq2[StepUpdate[S], error] {
	return func(yield func(StepUpdate[S], error) bool) {
		s.mu.Lock()
		if s.consumed {
			s.mu.Unlock()
			yield(StepUpdate[S]{}, ErrStreamConsumed)
			return
		}
		s.consumed = true
		s.mu.Unlock()

		final, steps, err := s.runnable.execute(s.ctx, s.in, func(u StepUpdate[S]) bool {
			return yield(u, nil)
		})

		s.mu.Lock()
		s.final, s.steps = final, steps
		if !errors.Is(err, errStopped) {
			s.err = err
		}
		s.mu.Unlock()

		if err != nil && !errors.Is(err, errStopped) {
			yield(StepUpdate[S]{}, err)
		}
	}
}

// Final returns the merged state, the number of invocations and the run error
// once Updates has been consumed.
func (s *Stream[S]) Final() (S, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.steps, s.err
}

// Collect drains the stream and returns every update together with the final state.
func (s *Stream[S]) Collect() ([]StepUpdate[S], S, error) {
	var updates []StepUpdate[S]
	for u, err := range s.Updates() {
		if err != nil {
			final, _, _ := s.Final()
			return updates, final, err
		}
		updates = append(updates, u)
	}
	final, _, err := s.Final()
	return updates, final, err
}
