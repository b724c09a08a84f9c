package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/smallnest/ragflow/log"
	"github.com/tmc/langchaingo/llms"
)

// ReflectionState is the state of the reflection agent.
type ReflectionState struct {
	Task      string `json:"task"`
	Draft     string `json:"draft,omitempty"`
	Critique  string `json:"critique,omitempty"`
	Accepted  *bool  `json:"accepted,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	// Drafts keeps every draft in order.
	Drafts []string `json:"drafts,omitempty" reducer:"append"`
}

// Review is the reflector's verdict on a draft.
type Review struct {
	Accept   bool   `json:"accept"`
	Feedback string `json:"feedback"`
}

func (r Review) Validate() error {
	if !r.Accept && strings.TrimSpace(r.Feedback) == "" {
		return errors.New("feedback is required when the draft is not accepted")
	}
	return nil
}

// ReflectionConfig configures the reflection agent.
type ReflectionConfig struct {
	Model llms.Model
	// ReflectionModel critiques drafts; defaults to Model.
	ReflectionModel llms.Model
	// MaxIterations bounds the number of drafts (default 3).
	MaxIterations    int
	SystemPrompt     string
	ReflectionPrompt string
	Verbose          bool
}

const defaultReflectionPrompt = `You are a critical reviewer. Evaluate the response for accuracy, completeness and clarity.
Reply with a JSON object {"accept": true|false, "feedback": "..."}.
Accept only when no significant improvement is possible; otherwise list concrete improvements in feedback.`

// NewReflectionAgent builds a generate <-> reflect loop that stops when the
// reflector accepts a draft or MaxIterations drafts were written.
func NewReflectionAgent(cfg ReflectionConfig) (*graph.StateRunnable[ReflectionState], error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("%w: model", errMissingCollaborator)
	}
	if cfg.ReflectionModel == nil {
		cfg.ReflectionModel = cfg.Model
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a helpful assistant. Generate a high-quality response to the user's request."
	}
	if cfg.ReflectionPrompt == "" {
		cfg.ReflectionPrompt = defaultReflectionPrompt
	}
	reviewer := llm.NewStructuredOutput[Review](cfg.ReflectionModel)

	g := graph.NewStateGraph[ReflectionState]()
	g.AddNode("generate", "Generate or revise the response", func(ctx context.Context, s ReflectionState) (ReflectionState, error) {
		human := s.Task
		if s.Draft != "" {
			if cfg.Verbose {
				log.Info("revising response (iteration %d)", s.Iteration)
			}
			human = fmt.Sprintf("Original request:\n%s\n\nPrevious draft:\n%s\n\nReflection and suggestions for improvement:\n%s\n\n"+
				"Generate an improved response that addresses the issues raised in the reflection.", s.Task, s.Draft, s.Critique)
		}
		draft, err := llm.Generate(ctx, cfg.Model, cfg.SystemPrompt, human)
		if err != nil {
			return ReflectionState{}, fmt.Errorf("failed to generate response: %w", err)
		}
		return ReflectionState{Draft: draft, Iteration: s.Iteration + 1, Drafts: []string{draft}}, nil
	})
	g.AddNode("reflect", "Critique the current draft", func(ctx context.Context, s ReflectionState) (ReflectionState, error) {
		human := fmt.Sprintf("Original request:\n%s\n\nGenerated response:\n%s", s.Task, s.Draft)
		review, err := reviewer.Generate(ctx, cfg.ReflectionPrompt, human)
		if err != nil {
			return ReflectionState{}, fmt.Errorf("failed to reflect: %w", err)
		}
		if cfg.Verbose {
			log.Info("reflection (accept=%t): %s", review.Accept, review.Feedback)
		}
		return ReflectionState{Accepted: boolPtr(review.Accept), Critique: review.Feedback}, nil
	})

	g.SetEntryPoint("generate")
	g.AddConditionalEdge("generate", func(_ context.Context, s ReflectionState) string {
		if s.Iteration >= cfg.MaxIterations {
			return graph.END
		}
		return "reflect"
	}, "reflect")
	g.AddConditionalEdge("reflect", func(_ context.Context, s ReflectionState) string {
		if isTrue(s.Accepted) {
			return graph.END
		}
		return "generate"
	}, "generate")

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("reflection"), nil
}
