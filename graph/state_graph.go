package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ragflow/store"
)

// StateGraph represents a state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct.
//
// Example usage:
//
//	type MyState struct {
//	    Count int
//	    Log   []string `reducer:"append"`
//	}
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    return MyState{Count: state.Count + 1, Log: []string{"incremented"}}, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// order keeps node registration order for deterministic validation and export
	order []string

	// edges is a slice of Edge objects representing the unconditional connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to its router and declared targets
	conditionalEdges map[string]ConditionalEdge[S]

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// Schema defines how node updates are merged into the state
	Schema Schema[S]

	// errs collects definition errors reported by Compile
	errs []error
}

// NewStateGraph creates a new instance of StateGraph with type safety.
// The type parameter S specifies the state type.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]ConditionalEdge[S]),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
// Registering the same name twice is a configuration error reported by Compile;
// the first registration is kept.
func (g *StateGraph[S]) AddNode(name string, description string, fn NodeFunc[S]) {
	switch {
	case name == "" || name == END:
		g.errs = append(g.errs, configErrorf(name, "reserved or empty node name"))
		return
	case fn == nil:
		g.errs = append(g.errs, configErrorf(name, "nil node function"))
		return
	}
	if _, exists := g.nodes[name]; exists {
		g.errs = append(g.errs, configErrorf(name, "node registered twice"))
		return
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	g.order = append(g.order, name)
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// targets is the complete set of nodes the router may return besides END.
//
//	g.AddConditionalEdge("grade", func(ctx context.Context, s RAGState) string {
//	    if s.Relevant != nil && *s.Relevant {
//	        return "generate"
//	    }
//	    return "rewrite"
//	}, "generate", "rewrite")
func (g *StateGraph[S]) AddConditionalEdge(from string, router RouterFunc[S], targets ...string) {
	if _, exists := g.conditionalEdges[from]; exists {
		g.errs = append(g.errs, configErrorf(from, "conditional edge registered twice"))
		return
	}
	g.conditionalEdges[from] = ConditionalEdge[S]{
		From:    from,
		Router:  router,
		Targets: append([]string(nil), targets...),
	}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetSchema sets the state schema for the graph.
func (g *StateGraph[S]) SetSchema(schema Schema[S]) {
	g.Schema = schema
}

// Nodes returns the registered node names in registration order.
func (g *StateGraph[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}

func (g *StateGraph[S]) known(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// validateDefinition checks references between nodes, edges and the entry point.
func (g *StateGraph[S]) validateDefinition() error {
	errs := append([]error(nil), g.errs...)

	if g.entryPoint == "" {
		errs = append(errs, configErrorf("", "entry point not set"))
	} else if !g.known(g.entryPoint) {
		errs = append(errs, configErrorf(g.entryPoint, "entry point is not a registered node"))
	}

	for _, e := range g.edges {
		if !g.known(e.From) {
			errs = append(errs, configErrorf(e.From, "edge source is not a registered node"))
		}
		if e.To != END && !g.known(e.To) {
			errs = append(errs, configErrorf(e.To, "edge target is not a registered node (from %s)", e.From))
		}
	}

	for _, from := range g.conditionalFroms() {
		ce := g.conditionalEdges[from]
		if !g.known(from) {
			errs = append(errs, configErrorf(from, "conditional edge source is not a registered node"))
		}
		if ce.Router == nil {
			errs = append(errs, configErrorf(from, "conditional edge has nil router"))
		}
		for _, t := range ce.Targets {
			if t != END && !g.known(t) {
				errs = append(errs, configErrorf(t, "router target is not a registered node (from %s)", from))
			}
		}
	}

	if v, ok := g.schema().(validator); ok {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// validateTopology checks that every node has exactly one outgoing edge and is
// reachable from the entry point.
func (g *StateGraph[S]) validateTopology() error {
	var errs []error

	outgoing := make(map[string]int, len(g.nodes))
	for _, e := range g.edges {
		outgoing[e.From]++
	}
	for from := range g.conditionalEdges {
		outgoing[from]++
	}
	for _, name := range g.order {
		switch n := outgoing[name]; {
		case n == 0:
			errs = append(errs, configErrorf(name, "no outgoing edge"))
		case n > 1:
			errs = append(errs, configErrorf(name, "%d outgoing edges, expected exactly one", n))
		}
	}

	reached := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(cur) {
			if next == END || reached[next] {
				continue
			}
			reached[next] = true
			queue = append(queue, next)
		}
	}
	for _, name := range g.order {
		if !reached[name] {
			errs = append(errs, configErrorf(name, "unreachable from entry point %s", g.entryPoint))
		}
	}

	return errors.Join(errs...)
}

func (g *StateGraph[S]) successors(name string) []string {
	var out []string
	for _, e := range g.edges {
		if e.From == name {
			out = append(out, e.To)
		}
	}
	if ce, ok := g.conditionalEdges[name]; ok {
		out = append(out, ce.Targets...)
	}
	return out
}

func (g *StateGraph[S]) conditionalFroms() []string {
	froms := make([]string, 0, len(g.conditionalEdges))
	for from := range g.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	return froms
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if err := g.validateDefinition(); err != nil {
		return nil, err
	}
	if err := g.validateTopology(); err != nil {
		return nil, err
	}

	return &StateRunnable[S]{
		graph:  g,
		schema: g.schema(),
		name:   "graph",
	}, nil
}

func (g *StateGraph[S]) schema() Schema[S] {
	if g.Schema != nil {
		return g.Schema
	}
	return defaultSchema[S]()
}

// defaultSchema merges struct states field by field and replaces any other state type.
func defaultSchema[S any]() Schema[S] {
	var zero S
	if t := reflect.TypeOf(zero); t != nil && t.Kind() == reflect.Struct {
		return NewStructSchema[S]()
	}
	return SchemaFunc[S](func(_, update S) (S, error) { return update, nil })
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
// A StateRunnable is safe for concurrent use: every run owns its state.
type StateRunnable[S any] struct {
	graph        *StateGraph[S]
	schema       Schema[S]
	name         string
	listeners    []Listener
	checkpointer store.CheckpointStore
}

// Name returns the name used for logging, metrics and checkpoints.
func (r *StateRunnable[S]) Name() string {
	return r.name
}

// WithName returns a copy of the runnable with the given name.
func (r *StateRunnable[S]) WithName(name string) *StateRunnable[S] {
	c := *r
	c.name = name
	return &c
}

// WithListeners returns a copy of the runnable that notifies the given listeners on every run.
func (r *StateRunnable[S]) WithListeners(ls ...Listener) *StateRunnable[S] {
	c := *r
	c.listeners = append(append([]Listener(nil), r.listeners...), ls...)
	return &c
}

// WithCheckpointer returns a copy of the runnable that saves a checkpoint after every
// step of runs configured with a ThreadID.
func (r *StateRunnable[S]) WithCheckpointer(cs store.CheckpointStore) *StateRunnable[S] {
	c := *r
	c.checkpointer = cs
	return &c
}

// Graph returns the graph the runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke executes the compiled state graph with the given input state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input state and config.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	state, _, err := r.execute(ctx, run[S]{
		state:  initialState,
		start:  r.graph.entryPoint,
		config: config,
	}, nil)
	return state, err
}

// run is the starting point of one execution.
type run[S any] struct {
	state  S
	start  string
	step   int
	config *Config
}

// errStopped signals that a stream consumer stopped pulling updates.
var errStopped = errors.New("stream stopped by consumer")

// execute is the single execution loop behind Invoke, Stream and Resume. yield, when
// not nil, receives one StepUpdate per node invocation and may stop the run by
// returning false.
func (r *StateRunnable[S]) execute(ctx context.Context, in run[S], yield func(StepUpdate[S]) bool) (S, int, error) {
	config := in.config
	if config == nil {
		config = &Config{}
	}
	limit := config.recursionLimit()
	ls := listeners(append(append([]Listener(nil), r.listeners...), config.Listeners...))

	ctx = WithConfig(ctx, config)
	ctx = context.WithValue(ctx, runIDKey{}, uuid.NewString())

	state := in.state
	current := in.start
	step := in.step
	invocations := 0
	started := time.Now()

	finish := func(err error) (S, int, error) {
		ls.runEnd(ctx, invocations, time.Since(started), err)
		return state, invocations, err
	}

	if in.step == 0 {
		last, err := r.lastStep(ctx, config)
		if err != nil {
			return finish(err)
		}
		step = last
	}

	for current != END {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if invocations >= limit {
			return finish(&IterationLimitError{Limit: limit, Next: current})
		}

		node := r.graph.nodes[current]
		step++
		invocations++

		ls.nodeEvent(ctx, NodeEventStart, current, step, state, nil)

		update, err := invokeNode(ctx, node, state)
		if err == nil {
			state, err = r.schema.Update(state, update)
			if err != nil {
				err = fmt.Errorf("state update failed: %w", err)
			}
		}
		var next string
		if err == nil {
			next, err = r.nextNode(ctx, current, state)
		}
		if err != nil {
			stepErr := &StepExecutionError{Node: current, Step: step, Err: err}
			ls.nodeEvent(ctx, NodeEventError, current, step, state, stepErr)
			return finish(stepErr)
		}

		ls.nodeEvent(ctx, NodeEventComplete, current, step, state, nil)

		if err := r.saveCheckpoint(ctx, config, step, current, next, state); err != nil {
			return finish(err)
		}

		if yield != nil && !yield(StepUpdate[S]{Node: current, Step: step, Update: update, Next: next}) {
			return finish(errStopped)
		}
		current = next
	}

	return finish(nil)
}

// invokeNode runs a node function, converting panics into errors.
func invokeNode[S any](ctx context.Context, node Node[S], state S) (update S, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return node.Function(ctx, state)
}

// route calls a router, converting panics into errors.
func route[S any](ctx context.Context, router RouterFunc[S], state S) (target string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("router panic: %v", p)
		}
	}()
	return router(ctx, state), nil
}

// nextNode resolves the outgoing edge of a node.
func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if ce, ok := r.graph.conditionalEdges[from]; ok {
		target, err := route(ctx, ce.Router, state)
		if err != nil {
			return "", err
		}
		if !ce.allows(target) {
			return "", fmt.Errorf("%w: %q (allowed %v)", ErrInvalidRoute, target, ce.Targets)
		}
		return target, nil
	}
	for _, e := range r.graph.edges {
		if e.From == from {
			return e.To, nil
		}
	}
	// Compile guarantees an outgoing edge.
	return "", configErrorf(from, "no outgoing edge")
}
