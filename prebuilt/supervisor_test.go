package prebuilt

import (
	"context"
	"testing"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/smallnest/ragflow/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_RoutesMembersUntilFinish(t *testing.T) {
	boss := llmtest.Texts(`{"next": "researcher"}`, `{"next": "writer"}`, `{"next": "FINISH"}`)
	members := map[string]Member{
		"researcher": AgentMember("researcher", llmtest.Texts("facts about Go"), "You research.", "Finds facts"),
		"writer":     AgentMember("writer", llmtest.Texts("an essay"), "You write.", "Writes prose"),
	}
	r, err := NewSupervisor(boss, members)
	require.NoError(t, err)

	nodes, final := runNodes(t, r, TeamState{Task: "Write about Go"})
	assert.Equal(t, []string{SupervisorNode, "researcher", SupervisorNode, "writer", SupervisorNode}, nodes)
	assert.Equal(t, []TeamMessage{
		{Name: "researcher", Content: "facts about Go"},
		{Name: "writer", Content: "an essay"},
	}, final.Messages)
	assert.Equal(t, "an essay", final.Last())

	system := boss.Calls()[0].Prompt()
	assert.Contains(t, system, "- researcher: Finds facts")
	assert.Contains(t, boss.Calls()[2].Prompt(), "[writer]\nan essay")
}

func TestSupervisor_InvalidRouteIsRetried(t *testing.T) {
	boss := llmtest.Texts(`{"next": "coder"}`, `{"next": "FINISH"}`)
	r, err := NewSupervisor(boss, map[string]Member{
		"writer": AgentMember("writer", llmtest.Texts(), "", "Writes"),
	})
	require.NoError(t, err)

	nodes, _ := runNodes(t, r, TeamState{Task: "t"})
	assert.Equal(t, []string{SupervisorNode}, nodes)
	assert.Contains(t, boss.Calls()[1].Prompt(), `got "coder"`)
}

func TestSupervisor_Hierarchical(t *testing.T) {
	research, err := NewSupervisor(
		llmtest.Texts(`{"next": "searcher"}`, `{"next": "FINISH"}`),
		map[string]Member{"searcher": AgentMember("searcher", llmtest.Texts("search notes"), "", "Searches")},
	)
	require.NoError(t, err)

	top, err := NewSupervisor(
		llmtest.Texts(`{"next": "research_team"}`, `{"next": "FINISH"}`),
		map[string]Member{"research_team": TeamMember("research_team", research, "Research team")},
	)
	require.NoError(t, err)

	var childNodes []string
	listener := graph.ListenerFunc(func(_ context.Context, ev graph.NodeEvent, node string, _ int, _ any, _ error) {
		if ev == graph.NodeEventComplete {
			childNodes = append(childNodes, node)
		}
	})

	final, err := top.InvokeWithConfig(context.Background(), TeamState{Task: "Investigate"}, &graph.Config{
		Listeners: []graph.Listener{listener},
	})
	require.NoError(t, err)
	assert.Equal(t, []TeamMessage{{Name: "research_team", Content: "search notes"}}, final.Messages)
	assert.Equal(t, []string{SupervisorNode, SupervisorNode, "searcher", SupervisorNode, "research_team", SupervisorNode}, childNodes)
}

func TestSupervisor_Validation(t *testing.T) {
	_, err := NewSupervisor(nil, map[string]Member{"a": {}})
	assert.ErrorIs(t, err, errMissingCollaborator)

	_, err = NewSupervisor(llmtest.Texts(), nil)
	assert.Error(t, err)

	_, err = NewSupervisor(llmtest.Texts(), map[string]Member{llm.FinishRoute: {}})
	assert.ErrorContains(t, err, "reserved")
}
