package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallnest/ragflow/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	N int
}

func counterGraph(t *testing.T, failAt int) *graph.StateRunnable[counterState] {
	t.Helper()
	g := graph.NewStateGraph[counterState]()
	g.AddNode("inc", "increment", func(_ context.Context, s counterState) (counterState, error) {
		if s.N+1 == failAt {
			return counterState{}, errors.New("boom")
		}
		return counterState{N: s.N + 1}, nil
	})
	g.SetEntryPoint("inc")
	g.AddConditionalEdge("inc", func(_ context.Context, s counterState) string {
		if s.N < 3 {
			return "inc"
		}
		return graph.END
	}, "inc")
	r, err := g.Compile()
	require.NoError(t, err)
	return r
}

func TestListener_RecordsRunsAndSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	r := counterGraph(t, 0).WithListeners(c.Listener("counter"))
	_, err = r.Invoke(context.Background(), counterState{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("counter", "succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("counter", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("counter", "inc", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.stepDuration))
}

func TestListener_RecordsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	r := counterGraph(t, 2).WithListeners(c.Listener("counter"))
	_, err = r.Invoke(context.Background(), counterState{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("counter", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("counter", "inc", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("counter", "inc", "error")))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestListener_RunCountersVisibleBeforeRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.Listener("idle")
	assert.Equal(t, 2, testutil.CollectAndCount(c.runsTotal, "ragflow_runs_total"))
}
