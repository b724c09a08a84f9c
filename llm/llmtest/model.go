// Package llmtest provides scripted llms.Model implementations for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Reply is one scripted model response.
type Reply struct {
	Content   string
	ToolCalls []llms.ToolCall
	Err       error
}

// Text is a plain text reply.
func Text(content string) Reply {
	return Reply{Content: content}
}

// ToolCall is a reply requesting a single tool call.
func ToolCall(id, name, arguments string) Reply {
	return Reply{ToolCalls: []llms.ToolCall{{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}}}
}

// Call records one GenerateContent invocation.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Prompt returns the text parts of every message joined by newlines.
func (c Call) Prompt() string {
	return PromptText(c.Messages)
}

// PromptText returns the text parts of messages joined by newlines.
func PromptText(messages []llms.MessageContent) string {
	var sb strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				sb.WriteString(t.Text)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// ScriptedModel answers with its replies in order and fails once they run out.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

var _ llms.Model = (*ScriptedModel)(nil)

// NewScriptedModel creates a model that returns replies in order.
func NewScriptedModel(replies ...Reply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// Texts is NewScriptedModel for plain text replies.
func Texts(contents ...string) *ScriptedModel {
	replies := make([]Reply, len(contents))
	for i, c := range contents {
		replies[i] = Text(c)
	}
	return NewScriptedModel(replies...)
}

func (m *ScriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Messages: append([]llms.MessageContent(nil), messages...), Options: opts})
	n := len(m.calls)
	if n > len(m.replies) {
		return nil, fmt.Errorf("llmtest: unexpected call %d, only %d replies scripted", n, len(m.replies))
	}

	r := m.replies[n-1]
	if r.Err != nil {
		return nil, r.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: r.Content, ToolCalls: r.ToolCalls}},
	}, nil
}

func (m *ScriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the recorded invocations.
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Remaining returns the number of unused replies.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(0, len(m.replies)-len(m.calls))
}

// FuncModel answers every call with fn.
type FuncModel func(ctx context.Context, messages []llms.MessageContent, opts llms.CallOptions) (string, error)

var _ llms.Model = FuncModel(nil)

func (f FuncModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	text, err := f(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (f FuncModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}
