package graph

import (
	"context"
	"fmt"
)

// SubgraphNode wraps a compiled graph so it can run as a single node of a parent
// graph with a different state type. in maps the parent state to the child's
// initial state and out maps the child's final state to a parent update.
//
// The child run inherits the parent's config (recursion limit, listeners) but not
// its thread, so it never writes checkpoints of its own.
func SubgraphNode[S, T any](child *StateRunnable[T], in func(S) T, out func(S, T) S) NodeFunc[S] {
	return func(ctx context.Context, state S) (S, error) {
		var zero S
		config := &Config{}
		if parent := GetConfig(ctx); parent != nil {
			c := *parent
			c.ThreadID = ""
			config = &c
		}

		result, err := child.InvokeWithConfig(ctx, in(state), config)
		if err != nil {
			return zero, fmt.Errorf("subgraph %s: %w", child.Name(), err)
		}
		return out(state, result), nil
	}
}

// AddSubgraph compiles child and registers it as node name of g.
func AddSubgraph[S, T any](g *StateGraph[S], name string, child *StateGraph[T], in func(S) T, out func(S, T) S) error {
	runnable, err := child.Compile()
	if err != nil {
		return fmt.Errorf("failed to compile subgraph %s: %w", name, err)
	}
	g.AddNode(name, "Subgraph: "+name, SubgraphNode(runnable.WithName(name), in, out))
	return nil
}
