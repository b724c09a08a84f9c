package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/tmc/langchaingo/llms"
)

// StepResult is an executed plan step and its outcome.
type StepResult struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// PlanExecuteState is the state of the plan-and-execute agent.
type PlanExecuteState struct {
	Input string `json:"input"`
	// Plan holds the steps still to run.
	Plan      []string          `json:"plan,omitempty"`
	PastSteps []StepResult      `json:"past_steps,omitempty" reducer:"append"`
	Results   map[string]string `json:"results,omitempty" reducer:"merge"`
	Response  string            `json:"response,omitempty"`
}

// Plan is the planner's output.
type Plan struct {
	Steps []string `json:"steps"`
}

func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("steps must not be empty")
	}
	return nil
}

// Replan is the replanner's output: either a final response or the remaining steps.
type Replan struct {
	Response string   `json:"response,omitempty"`
	Steps    []string `json:"steps,omitempty"`
}

func (r Replan) Validate() error {
	hasResponse := strings.TrimSpace(r.Response) != ""
	if hasResponse == (len(r.Steps) > 0) {
		return errors.New("exactly one of response or steps must be set")
	}
	return nil
}

// Executor runs one plan step.
type Executor func(ctx context.Context, step string, s PlanExecuteState) (string, error)

// ModelExecutor executes steps with a single model call each.
func ModelExecutor(model llms.Model) Executor {
	return func(ctx context.Context, step string, s PlanExecuteState) (string, error) {
		return llm.Generate(ctx, model, "You are a diligent assistant executing one step of a larger plan.", stepPrompt(step, s))
	}
}

// AgentExecutor executes every step with a ReAct agent, so steps may use tools.
func AgentExecutor(agent *graph.StateRunnable[MessagesState]) Executor {
	return func(ctx context.Context, step string, s PlanExecuteState) (string, error) {
		out, err := agent.Invoke(ctx, MessagesState{
			Messages: []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, stepPrompt(step, s))},
		})
		if err != nil {
			return "", err
		}
		return out.FinalAnswer(), nil
	}
}

func stepPrompt(step string, s PlanExecuteState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n", s.Input)
	if len(s.PastSteps) > 0 {
		sb.WriteString("\nCompleted steps:\n")
		for _, p := range s.PastSteps {
			fmt.Fprintf(&sb, "- %s: %s\n", p.Step, p.Result)
		}
	}
	fmt.Fprintf(&sb, "\nYou are tasked with executing: %s", step)
	return sb.String()
}

// PlanExecuteConfig configures the plan-and-execute agent.
type PlanExecuteConfig struct {
	// Planner writes and revises the plan.
	Planner llms.Model
	// Executor runs steps; defaults to ModelExecutor(Planner).
	Executor Executor
}

const planPrompt = `For the given objective, come up with a simple step by step plan.
The plan should involve individual tasks that, if executed correctly, will yield the correct answer. Do not add superfluous steps.
Reply with a JSON object {"steps": ["...", "..."]}.`

const replanPrompt = `You are revising a plan towards an objective. Given the completed steps and their results,
either reply {"response": "<final answer>"} when the objective is met, or {"steps": [...]} with only the steps still needed.`

// NewPlanExecute builds plan -> execute -> replan -> {execute | END}.
func NewPlanExecute(cfg PlanExecuteConfig) (*graph.StateRunnable[PlanExecuteState], error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("%w: planner", errMissingCollaborator)
	}
	if cfg.Executor == nil {
		cfg.Executor = ModelExecutor(cfg.Planner)
	}
	planner := llm.NewStructuredOutput[Plan](cfg.Planner)
	replanner := llm.NewStructuredOutput[Replan](cfg.Planner)

	g := graph.NewStateGraph[PlanExecuteState]()
	g.AddNode("plan", "Write the initial plan", func(ctx context.Context, s PlanExecuteState) (PlanExecuteState, error) {
		p, err := planner.Generate(ctx, planPrompt, s.Input)
		if err != nil {
			return PlanExecuteState{}, fmt.Errorf("plan: %w", err)
		}
		return PlanExecuteState{Plan: p.Steps}, nil
	})
	g.AddNode("execute", "Execute the next step", func(ctx context.Context, s PlanExecuteState) (PlanExecuteState, error) {
		if len(s.Plan) == 0 {
			return PlanExecuteState{}, errors.New("no step to execute")
		}
		step := s.Plan[0]
		result, err := cfg.Executor(ctx, step, s)
		if err != nil {
			return PlanExecuteState{}, fmt.Errorf("execute %q: %w", step, err)
		}
		return PlanExecuteState{
			Plan:      s.Plan[1:],
			PastSteps: []StepResult{{Step: step, Result: result}},
			Results:   map[string]string{step: result},
		}, nil
	})
	g.AddNode("replan", "Finish or revise the remaining plan", func(ctx context.Context, s PlanExecuteState) (PlanExecuteState, error) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Objective: %s\n\nCompleted steps:\n", s.Input)
		for _, p := range s.PastSteps {
			fmt.Fprintf(&sb, "- %s: %s\n", p.Step, p.Result)
		}
		if len(s.Plan) > 0 {
			fmt.Fprintf(&sb, "\nRemaining plan:\n- %s\n", strings.Join(s.Plan, "\n- "))
		}
		r, err := replanner.Generate(ctx, replanPrompt, sb.String())
		if err != nil {
			return PlanExecuteState{}, fmt.Errorf("replan: %w", err)
		}
		if r.Response != "" {
			return PlanExecuteState{Response: r.Response}, nil
		}
		return PlanExecuteState{Plan: r.Steps}, nil
	})

	g.SetEntryPoint("plan")
	g.AddEdge("plan", "execute")
	g.AddEdge("execute", "replan")
	g.AddConditionalEdge("replan", func(_ context.Context, s PlanExecuteState) string {
		if s.Response != "" {
			return graph.END
		}
		return "execute"
	}, "execute")

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("plan-execute"), nil
}
