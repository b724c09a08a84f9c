package prebuilt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/tmc/langchaingo/llms"
)

// SupervisorNode is the name of the routing node of a supervisor graph.
const SupervisorNode = "supervisor"

// TeamMessage is one contribution to a supervised conversation.
type TeamMessage struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// TeamState is the state shared by a supervisor and its members.
type TeamState struct {
	Task     string        `json:"task"`
	Messages []TeamMessage `json:"messages,omitempty" reducer:"append"`
	// Next is the supervisor's latest decision.
	Next string `json:"next,omitempty"`
}

// Last returns the content of the latest message, or the task when there is none.
func (s TeamState) Last() string {
	if len(s.Messages) == 0 {
		return s.Task
	}
	return s.Messages[len(s.Messages)-1].Content
}

// Member is a worker the supervisor can delegate to. Its node receives the full
// team state and returns the messages it adds.
type Member struct {
	Description string
	Node        graph.NodeFunc[TeamState]
}

// AgentMember is a member answering with a single model call.
func AgentMember(name string, model llms.Model, systemPrompt, description string) Member {
	return Member{
		Description: description,
		Node: func(ctx context.Context, s TeamState) (TeamState, error) {
			out, err := llm.Generate(ctx, model, systemPrompt, formatTranscript(s))
			if err != nil {
				return TeamState{}, fmt.Errorf("%s: %w", name, err)
			}
			return TeamState{Messages: []TeamMessage{{Name: name, Content: out}}}, nil
		},
	}
}

// TeamMember wraps a compiled supervisor graph as a member of a parent team,
// giving hierarchical teams. The child works on the parent's latest message and
// its final message is reported back under name.
func TeamMember(name string, team *graph.StateRunnable[TeamState], description string) Member {
	return Member{
		Description: description,
		Node: graph.SubgraphNode(team,
			func(s TeamState) TeamState { return TeamState{Task: s.Last()} },
			func(_ TeamState, child TeamState) TeamState {
				return TeamState{Messages: []TeamMessage{{Name: name, Content: child.Last()}}}
			},
		),
	}
}

const supervisorPrompt = `You are a supervisor tasked with managing a conversation between the following workers:
%s
Given the user request and the conversation so far, respond with the worker to act next.
Each worker will perform a task and respond with their results. When the request is fully answered, respond with FINISH.
Reply with a JSON object {"next": "<worker name or FINISH>"}.`

// NewSupervisor builds a supervisor graph: the supervisor picks a member or
// FINISH, and every member reports back to the supervisor.
func NewSupervisor(model llms.Model, members map[string]Member) (*graph.StateRunnable[TeamState], error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model", errMissingCollaborator)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("supervisor needs at least one member")
	}

	names := make([]string, 0, len(members))
	for name := range members {
		switch name {
		case SupervisorNode, llm.FinishRoute, graph.END:
			return nil, fmt.Errorf("member name %q is reserved", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var roster strings.Builder
	for _, name := range names {
		fmt.Fprintf(&roster, "- %s: %s\n", name, members[name].Description)
	}
	system := fmt.Sprintf(supervisorPrompt, roster.String())
	router := llm.NewStructuredOutput[llm.RouteDecision](model).WithValidator(llm.ValidateRoute(names))

	g := graph.NewStateGraph[TeamState]()
	g.AddNode(SupervisorNode, "Supervisor orchestration node", func(ctx context.Context, s TeamState) (TeamState, error) {
		d, err := router.Generate(ctx, system, formatTranscript(s))
		if err != nil {
			return TeamState{}, fmt.Errorf("route: %w", err)
		}
		return TeamState{Next: d.Next}, nil
	})
	for _, name := range names {
		g.AddNode(name, members[name].Description, members[name].Node)
		g.AddEdge(name, SupervisorNode)
	}

	g.SetEntryPoint(SupervisorNode)
	g.AddConditionalEdge(SupervisorNode, func(_ context.Context, s TeamState) string {
		if s.Next == llm.FinishRoute {
			return graph.END
		}
		return s.Next
	}, names...)

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("supervisor"), nil
}

func formatTranscript(s TeamState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request: %s\n", s.Task)
	for _, m := range s.Messages {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", m.Name, m.Content)
	}
	return sb.String()
}
