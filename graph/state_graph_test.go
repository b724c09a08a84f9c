package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ragState struct {
	Question  string
	Documents []string `reducer:"append"`
	Relevant  *bool
	Answer    string
	Visited   []string `reducer:"append"`
}

func boolPtr(b bool) *bool { return &b }

// newRAGGraph builds retrieve -> grade -> {generate | rewrite}, rewrite -> retrieve.
func newRAGGraph(t *testing.T, relevant bool) *StateGraph[ragState] {
	t.Helper()

	g, err := Define(Definition[ragState]{
		Start: "retrieve",
		Nodes: []Node[ragState]{
			{Name: "retrieve", Function: func(_ context.Context, s ragState) (ragState, error) {
				return ragState{Documents: []string{"doc about " + s.Question}, Visited: []string{"retrieve"}}, nil
			}},
			{Name: "grade", Function: func(context.Context, ragState) (ragState, error) {
				return ragState{Relevant: boolPtr(relevant), Visited: []string{"grade"}}, nil
			}},
			{Name: "generate", Function: func(_ context.Context, s ragState) (ragState, error) {
				return ragState{Answer: "answer to " + s.Question, Visited: []string{"generate"}}, nil
			}},
			{Name: "rewrite", Function: func(context.Context, ragState) (ragState, error) {
				return ragState{Visited: []string{"rewrite"}}, nil
			}},
		},
		Edges: []Edge{
			{From: "retrieve", To: "grade"},
			{From: "rewrite", To: "retrieve"},
			{From: "generate", To: END},
		},
		ConditionalEdges: []ConditionalEdge[ragState]{
			{From: "grade", Router: func(_ context.Context, s ragState) string {
				if s.Relevant != nil && *s.Relevant {
					return "generate"
				}
				return "rewrite"
			}, Targets: []string{"generate", "rewrite"}},
		},
	})
	require.NoError(t, err)
	return g
}

func TestRun_RelevantPathTakesThreeSteps(t *testing.T) {
	app, err := newRAGGraph(t, true).Compile()
	require.NoError(t, err)

	var steps int
	counter := ListenerFunc(func(_ context.Context, event NodeEvent, _ string, _ int, _ any, _ error) {
		if event == NodeEventStart {
			steps++
		}
	})

	final, err := app.InvokeWithConfig(context.Background(), ragState{Question: "Q"}, &Config{Listeners: []Listener{counter}})
	require.NoError(t, err)

	assert.Equal(t, 3, steps)
	assert.Equal(t, []string{"retrieve", "grade", "generate"}, final.Visited)
	assert.NotEmpty(t, final.Answer)
	require.NotNil(t, final.Relevant)
	assert.True(t, *final.Relevant)
}

func TestRun_IterationCapStopsAfterExactlyFiveSteps(t *testing.T) {
	app, err := newRAGGraph(t, false).Compile()
	require.NoError(t, err)

	final, err := app.InvokeWithConfig(context.Background(), ragState{Question: "Q"}, &Config{RecursionLimit: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIterationLimitExceeded)

	var limitErr *IterationLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, "rewrite", limitErr.Next)

	assert.Equal(t, []string{"retrieve", "grade", "rewrite", "retrieve", "grade"}, final.Visited)
	assert.Empty(t, final.Answer)
}

func TestRun_DefaultRecursionLimit(t *testing.T) {
	app, err := newRAGGraph(t, false).Compile()
	require.NoError(t, err)

	final, err := app.Invoke(context.Background(), ragState{Question: "Q"})
	assert.ErrorIs(t, err, ErrIterationLimitExceeded)
	assert.Len(t, final.Visited, DefaultRecursionLimit)
}

func TestRun_AppendFieldOnlyGrows(t *testing.T) {
	type loopState struct {
		Items []int `reducer:"append"`
		Round int
	}

	g := NewStateGraph[loopState]()
	g.AddNode("loop", "adds two items", func(_ context.Context, s loopState) (loopState, error) {
		return loopState{Items: []int{s.Round*2 + 1, s.Round*2 + 2}, Round: s.Round + 1}, nil
	})
	g.AddConditionalEdge("loop", func(_ context.Context, s loopState) string {
		if s.Round < 4 {
			return "loop"
		}
		return END
	}, "loop")
	g.SetEntryPoint("loop")

	app, err := g.Compile()
	require.NoError(t, err)

	var lengths []int
	spy := ListenerFunc(func(_ context.Context, event NodeEvent, _ string, _ int, state any, _ error) {
		if event == NodeEventComplete {
			lengths = append(lengths, len(state.(loopState).Items))
		}
	})

	final, err := app.InvokeWithConfig(context.Background(), loopState{Items: []int{0}}, &Config{Listeners: []Listener{spy}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 7, 9}, lengths)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, final.Items)
}

func TestRun_InputStateIsNotMutated(t *testing.T) {
	app, err := newRAGGraph(t, true).Compile()
	require.NoError(t, err)

	docs := make([]string, 1, 8)
	docs[0] = "seed"
	initial := ragState{Question: "Q", Documents: docs}

	_, err = app.Invoke(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed"}, initial.Documents)
	// The spare capacity of the caller's slice must not be written to.
	assert.Empty(t, docs[1:2][0])
}

func TestRun_InvalidRouteFailsStep(t *testing.T) {
	g := NewStateGraph[ragState]()
	g.AddNode("grade", "grade", func(context.Context, ragState) (ragState, error) {
		return ragState{}, nil
	})
	g.AddNode("generate", "generate", func(context.Context, ragState) (ragState, error) {
		return ragState{}, nil
	})
	g.AddConditionalEdge("grade", func(context.Context, ragState) string { return "nowhere" }, "generate")
	g.AddEdge("generate", END)
	g.SetEntryPoint("grade")

	app, err := g.Compile()
	require.NoError(t, err)

	_, err = app.Invoke(context.Background(), ragState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoute)

	var stepErr *StepExecutionError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "grade", stepErr.Node)
	assert.Equal(t, 1, stepErr.Step)
}

func TestRun_NodeErrorsAreWrapped(t *testing.T) {
	boom := errors.New("model unavailable")

	g := NewStateGraph[ragState]()
	g.AddNode("retrieve", "retrieve", func(context.Context, ragState) (ragState, error) {
		return ragState{Visited: []string{"retrieve"}}, nil
	})
	g.AddNode("generate", "generate", func(context.Context, ragState) (ragState, error) {
		return ragState{}, boom
	})
	g.AddEdge("retrieve", "generate")
	g.AddEdge("generate", END)
	g.SetEntryPoint("retrieve")

	app, err := g.Compile()
	require.NoError(t, err)

	var events []NodeEvent
	rec := ListenerFunc(func(_ context.Context, event NodeEvent, _ string, _ int, _ any, _ error) {
		events = append(events, event)
	})

	final, err := app.InvokeWithConfig(context.Background(), ragState{}, &Config{Listeners: []Listener{rec}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepExecutionError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "generate", stepErr.Node)
	assert.Equal(t, 2, stepErr.Step)
	assert.Equal(t, []string{"retrieve"}, final.Visited)
	assert.Equal(t, []NodeEvent{NodeEventStart, NodeEventComplete, NodeEventStart, NodeEventError}, events)
}

func TestRun_PanicBecomesStepError(t *testing.T) {
	g := NewStateGraph[ragState]()
	g.AddNode("explode", "explode", func(context.Context, ragState) (ragState, error) {
		panic("nil vector store")
	})
	g.AddEdge("explode", END)
	g.SetEntryPoint("explode")

	app, err := g.Compile()
	require.NoError(t, err)

	_, err = app.Invoke(context.Background(), ragState{})
	var stepErr *StepExecutionError
	require.True(t, errors.As(err, &stepErr))
	assert.Contains(t, stepErr.Error(), "nil vector store")
}

func TestRun_RouterPanicBecomesStepError(t *testing.T) {
	g := NewStateGraph[ragState]()
	g.AddNode("grade", "grade", func(context.Context, ragState) (ragState, error) {
		return ragState{Visited: []string{"grade"}}, nil
	})
	g.AddNode("generate", "generate", func(context.Context, ragState) (ragState, error) {
		return ragState{}, nil
	})
	g.AddConditionalEdge("grade", func(_ context.Context, s ragState) string {
		if *s.Relevant {
			return "generate"
		}
		return END
	}, "generate")
	g.AddEdge("generate", END)
	g.SetEntryPoint("grade")

	app, err := g.Compile()
	require.NoError(t, err)

	var events []NodeEvent
	var ended RunStatus
	rec := &recordingListener{
		node: func(e NodeEvent) { events = append(events, e) },
		end:  func(s RunStatus) { ended = s },
	}

	_, err = app.WithListeners(rec).Invoke(context.Background(), ragState{Question: "Q"})
	var stepErr *StepExecutionError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "grade", stepErr.Node)
	assert.Equal(t, 1, stepErr.Step)
	assert.Contains(t, err.Error(), "router panic")
	assert.Equal(t, []NodeEvent{NodeEventStart, NodeEventError}, events)
	assert.Equal(t, RunFailed, ended)
}

type recordingListener struct {
	node func(NodeEvent)
	end  func(RunStatus)
}

func (l *recordingListener) OnNodeEvent(_ context.Context, event NodeEvent, _ string, _ int, _ any, _ error) {
	l.node(event)
}

func (l *recordingListener) OnRunEnd(_ context.Context, status RunStatus, _ int, _ time.Duration, _ error) {
	l.end(status)
}

func TestRun_ContextCancelled(t *testing.T) {
	app, err := newRAGGraph(t, true).Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = app.Invoke(ctx, ragState{Question: "Q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ConfigVisibleToNodes(t *testing.T) {
	g := NewStateGraph[ragState]()
	g.AddNode("read", "read config", func(ctx context.Context, _ ragState) (ragState, error) {
		cfg := GetConfig(ctx)
		if cfg == nil {
			return ragState{}, errors.New("no config")
		}
		if GetRunID(ctx) == "" {
			return ragState{}, errors.New("no run id")
		}
		model, _ := cfg.Configurable["model"].(string)
		return ragState{Answer: model}, nil
	})
	g.AddEdge("read", END)
	g.SetEntryPoint("read")

	app, err := g.Compile()
	require.NoError(t, err)

	final, err := app.InvokeWithConfig(context.Background(), ragState{}, &Config{
		Configurable: map[string]any{"model": "gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", final.Answer)
}

func TestRun_NonStructStateIsReplaced(t *testing.T) {
	g := NewStateGraph[int]()
	g.AddNode("double", "double", func(_ context.Context, n int) (int, error) { return n * 2, nil })
	g.AddEdge("double", END)
	g.SetEntryPoint("double")

	app, err := g.Compile()
	require.NoError(t, err)

	out, err := app.Invoke(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestDefine_DanglingEdgeRegistersNothing(t *testing.T) {
	g, err := Define(Definition[ragState]{
		Start: "retrieve",
		Nodes: []Node[ragState]{
			{Name: "retrieve", Function: func(context.Context, ragState) (ragState, error) { return ragState{}, nil }},
		},
		Edges: []Edge{{From: "retrieve", To: "grade"}},
	})
	assert.Nil(t, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "grade", cfgErr.Node)
}

func TestCompile_ConfigurationErrors(t *testing.T) {
	noop := func(context.Context, ragState) (ragState, error) { return ragState{}, nil }

	tests := []struct {
		name  string
		build func(g *StateGraph[ragState])
		want  string
	}{
		{
			name: "duplicate node",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.SetEntryPoint("a")
			},
			want: "registered twice",
		},
		{
			name: "missing entry point",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
			},
			want: "entry point not set",
		},
		{
			name: "unreachable node",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddNode("orphan", "", noop)
				g.AddEdge("a", END)
				g.AddEdge("orphan", END)
				g.SetEntryPoint("a")
			},
			want: "unreachable",
		},
		{
			name: "no outgoing edge",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.SetEntryPoint("a")
			},
			want: "no outgoing edge",
		},
		{
			name: "two outgoing edges",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddNode("b", "", noop)
				g.AddEdge("a", "b")
				g.AddEdge("a", END)
				g.AddEdge("b", END)
				g.SetEntryPoint("a")
			},
			want: "expected exactly one",
		},
		{
			name: "unknown router target",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddConditionalEdge("a", func(context.Context, ragState) string { return END }, "ghost")
				g.SetEntryPoint("a")
			},
			want: "router target",
		},
		{
			name: "reserved node name",
			build: func(g *StateGraph[ragState]) {
				g.AddNode(END, "", noop)
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.SetEntryPoint("a")
			},
			want: "reserved",
		},
		{
			name: "nil router",
			build: func(g *StateGraph[ragState]) {
				g.AddNode("a", "", noop)
				g.AddConditionalEdge("a", nil, END)
				g.SetEntryPoint("a")
			},
			want: "nil router",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewStateGraph[ragState]()
			tt.build(g)

			app, err := g.Compile()
			assert.Nil(t, app)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStateRunnable_CopiesOnWith(t *testing.T) {
	app, err := newRAGGraph(t, true).Compile()
	require.NoError(t, err)

	named := app.WithName("crag")
	assert.Equal(t, "graph", app.Name())
	assert.Equal(t, "crag", named.Name())
	assert.Same(t, app.Graph(), named.Graph())
	assert.Equal(t, []string{"retrieve", "grade", "generate", "rewrite"}, app.Graph().Nodes())
}
