package prebuilt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// MessagesState is a conversation that only grows.
type MessagesState struct {
	Messages []llms.MessageContent `reducer:"append"`
}

// FinalAnswer returns the text of the last AI message.
func (s MessagesState) FinalAnswer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role != llms.ChatMessageTypeAI {
			continue
		}
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				return t.Text
			}
		}
	}
	return ""
}

// HasToolCalls reports whether the last message requests tool calls.
func (s MessagesState) HasToolCalls() bool {
	if len(s.Messages) == 0 {
		return false
	}
	for _, p := range s.Messages[len(s.Messages)-1].Parts {
		if _, ok := p.(llms.ToolCall); ok {
			return true
		}
	}
	return false
}

// LLMStep calls a model with a tool set and appends its reply.
type LLMStep struct {
	Model        llms.Model
	Tools        []tools.Tool
	SystemPrompt string
	// MaxIterations stops tool use after that many model replies; 0 means no limit.
	MaxIterations int
}

// Run is the node function of the step.
func (s LLMStep) Run(ctx context.Context, state MessagesState) (MessagesState, error) {
	if s.MaxIterations > 0 && countAI(state.Messages) >= s.MaxIterations {
		return MessagesState{Messages: []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeAI, "Maximum iterations reached. Please try a simpler query."),
		}}, nil
	}

	msgs := state.Messages
	if s.SystemPrompt != "" {
		msgs = append([]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, s.SystemPrompt)}, msgs...)
	}
	var opts []llms.CallOption
	if len(s.Tools) > 0 {
		opts = append(opts, llms.WithTools(toolDefinitions(s.Tools)))
	}

	resp, err := s.Model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return MessagesState{}, err
	}
	if len(resp.Choices) == 0 {
		return MessagesState{}, llm.ErrEmptyResponse
	}
	choice := resp.Choices[0]

	ai := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		ai.Parts = append(ai.Parts, llms.TextPart(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		ai.Parts = append(ai.Parts, tc)
	}
	return MessagesState{Messages: []llms.MessageContent{ai}}, nil
}

func countAI(msgs []llms.MessageContent) int {
	n := 0
	for _, m := range msgs {
		if m.Role == llms.ChatMessageTypeAI {
			n++
		}
	}
	return n
}

func toolDefinitions(ts []tools.Tool) []llms.Tool {
	defs := make([]llms.Tool, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": "The input query for the tool",
						},
					},
					"required":             []string{"input"},
					"additionalProperties": false,
				},
			},
		})
	}
	return defs
}

// ToolStep runs the tool calls of the last AI message and appends one tool
// message per call. Tool failures are reported to the model, not to the run.
type ToolStep struct {
	tools map[string]tools.Tool
}

// NewToolStep creates a tool dispatcher.
func NewToolStep(ts ...tools.Tool) *ToolStep {
	m := make(map[string]tools.Tool, len(ts))
	for _, t := range ts {
		m[t.Name()] = t
	}
	return &ToolStep{tools: m}
}

// Run is the node function of the step.
func (s *ToolStep) Run(ctx context.Context, state MessagesState) (MessagesState, error) {
	if len(state.Messages) == 0 {
		return MessagesState{}, fmt.Errorf("no messages in state")
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Role != llms.ChatMessageTypeAI {
		return MessagesState{}, fmt.Errorf("last message is not an AI message")
	}

	var out []llms.MessageContent
	for _, part := range last.Parts {
		tc, ok := part.(llms.ToolCall)
		if !ok || tc.FunctionCall == nil {
			continue
		}
		out = append(out, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       tc.FunctionCall.Name,
				Content:    s.call(ctx, tc.FunctionCall),
			}},
		})
	}
	return MessagesState{Messages: out}, nil
}

func (s *ToolStep) call(ctx context.Context, fc *llms.FunctionCall) string {
	t, ok := s.tools[fc.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", fc.Name)
	}

	input := fc.Arguments
	var args map[string]any
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err == nil {
		if v, ok := args["input"].(string); ok {
			input = v
		}
	}

	res, err := t.Call(ctx, input)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return res
}

type reactOptions struct {
	systemPrompt  string
	maxIterations int
}

// ReactOption configures NewReactAgent.
type ReactOption func(*reactOptions)

// WithSystemPrompt prepends a system message to every model call.
func WithSystemPrompt(prompt string) ReactOption {
	return func(o *reactOptions) {
		o.systemPrompt = prompt
	}
}

// WithMaxIterations caps the model replies of one run (default 10).
func WithMaxIterations(n int) ReactOption {
	return func(o *reactOptions) {
		o.maxIterations = n
	}
}

// NewReactAgent builds agent -> {tools -> agent | END}.
func NewReactAgent(model llms.Model, ts []tools.Tool, opts ...ReactOption) (*graph.StateRunnable[MessagesState], error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model", errMissingCollaborator)
	}
	o := reactOptions{maxIterations: 10}
	for _, opt := range opts {
		opt(&o)
	}

	agent := LLMStep{Model: model, Tools: ts, SystemPrompt: o.systemPrompt, MaxIterations: o.maxIterations}

	g := graph.NewStateGraph[MessagesState]()
	g.AddNode("agent", "ReAct agent decision maker", agent.Run)
	g.AddNode("tools", "Tool execution node", NewToolStep(ts...).Run)
	g.SetEntryPoint("agent")
	g.AddConditionalEdge("agent", func(_ context.Context, s MessagesState) string {
		if s.HasToolCalls() {
			return "tools"
		}
		return graph.END
	}, "tools")
	g.AddEdge("tools", "agent")

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("react"), nil
}
