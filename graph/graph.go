package graph

import (
	"context"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultRecursionLimit is the number of node invocations a run may perform
// when Config.RecursionLimit is not set.
const DefaultRecursionLimit = 25

// NodeFunc is the function executed by a node. It receives the current state and
// returns a partial update: only the non-zero fields of the returned value are
// merged into the state by the graph's schema.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc decides the next node from the current state. It must return one of
// the targets declared with the conditional edge, or END.
type RouterFunc[S any] func(ctx context.Context, state S) string

// Node represents a node in the graph.
type Node[S any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function is the function associated with the node.
	Function NodeFunc[S]
}

// Edge represents an unconditional edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// ConditionalEdge is an edge whose destination is chosen at runtime by Router.
// Targets is the closed set of nodes the router may return (END is always allowed).
type ConditionalEdge[S any] struct {
	From    string
	Router  RouterFunc[S]
	Targets []string
}

// allows reports whether target is a legal router output for the edge.
func (e ConditionalEdge[S]) allows(target string) bool {
	if target == END {
		return true
	}
	for _, t := range e.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Definition declares a whole graph at once. It is the input of Define.
type Definition[S any] struct {
	Nodes            []Node[S]
	Edges            []Edge
	ConditionalEdges []ConditionalEdge[S]
	Start            string
	Schema           Schema[S]
}

// Define validates a complete graph definition and returns a StateGraph holding it.
// Registration is atomic: on any ConfigurationError no graph is returned.
func Define[S any](def Definition[S]) (*StateGraph[S], error) {
	g := NewStateGraph[S]()
	for _, n := range def.Nodes {
		g.AddNode(n.Name, n.Description, n.Function)
	}
	for _, e := range def.Edges {
		g.AddEdge(e.From, e.To)
	}
	for _, ce := range def.ConditionalEdges {
		g.AddConditionalEdge(ce.From, ce.Router, ce.Targets...)
	}
	g.SetEntryPoint(def.Start)
	if def.Schema != nil {
		g.SetSchema(def.Schema)
	}

	if err := g.validateDefinition(); err != nil {
		return nil, err
	}
	return g, nil
}
