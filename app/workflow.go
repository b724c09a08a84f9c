package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/rag"
)

var (
	// ErrUnknownWorkflow is returned for a workflow name that is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrInvalidInput is returned when an Input lacks what a workflow needs.
	ErrInvalidInput = errors.New("invalid input")
)

// Input is the JSON-facing input shared by all workflows.
type Input struct {
	Question string `json:"question,omitempty"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Workflow string         `json:"workflow"`
	ThreadID string         `json:"thread_id,omitempty"`
	Answer   string         `json:"answer"`
	Sources  []rag.Document `json:"sources,omitempty"`
	State    any            `json:"state"`
}

// Event is one streamed step.
type Event struct {
	Node   string `json:"node"`
	Step   int    `json:"step"`
	Next   string `json:"next"`
	Update any    `json:"update"`
}

// Snapshot is a saved thread state.
type Snapshot struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	NodeName     string    `json:"node"`
	Next         string    `json:"next"`
	Step         int       `json:"step"`
	CreatedAt    time.Time `json:"created_at"`
	State        any       `json:"state"`
}

// Workflow is a compiled graph behind a state-type independent surface.
type Workflow interface {
	Name() string
	Description() string
	Run(ctx context.Context, in Input, config *graph.Config) (*Result, error)
	// Stream runs the workflow and calls emit after every step. An emit error
	// stops the run and is returned.
	Stream(ctx context.Context, in Input, config *graph.Config, emit func(Event) error) (*Result, error)
	// Resume continues config.ThreadID; emit may be nil.
	Resume(ctx context.Context, config *graph.Config, emit func(Event) error) (*Result, error)
	State(ctx context.Context, threadID string) (*Snapshot, error)
	History(ctx context.Context, threadID string) ([]*Snapshot, error)
	Mermaid() string
	DOT() string
}

type workflow[S any] struct {
	name        string
	description string
	runnable    *graph.StateRunnable[S]
	input       func(Input) (S, error)
	answer      func(S) (string, []rag.Document)
}

var _ Workflow = (*workflow[struct{}])(nil)

func (w *workflow[S]) Name() string        { return w.name }
func (w *workflow[S]) Description() string { return w.description }

func (w *workflow[S]) result(config *graph.Config, state S) *Result {
	answer, sources := w.answer(state)
	res := &Result{Workflow: w.name, Answer: answer, Sources: sources, State: state}
	if config != nil {
		res.ThreadID = config.ThreadID
	}
	return res
}

func (w *workflow[S]) Run(ctx context.Context, in Input, config *graph.Config) (*Result, error) {
	initial, err := w.input(in)
	if err != nil {
		return nil, err
	}
	final, err := w.runnable.InvokeWithConfig(ctx, initial, config)
	if err != nil {
		return nil, err
	}
	return w.result(config, final), nil
}

func (w *workflow[S]) Stream(ctx context.Context, in Input, config *graph.Config, emit func(Event) error) (*Result, error) {
	initial, err := w.input(in)
	if err != nil {
		return nil, err
	}
	return w.drain(config, w.runnable.Stream(ctx, initial, config), emit)
}

func (w *workflow[S]) Resume(ctx context.Context, config *graph.Config, emit func(Event) error) (*Result, error) {
	if emit == nil {
		final, err := w.runnable.Resume(ctx, config)
		if err != nil {
			return nil, err
		}
		return w.result(config, final), nil
	}
	stream, err := w.runnable.ResumeStream(ctx, config)
	if err != nil {
		return nil, err
	}
	return w.drain(config, stream, emit)
}

func (w *workflow[S]) drain(config *graph.Config, stream *graph.Stream[S], emit func(Event) error) (*Result, error) {
	for u, err := range stream.Updates() {
		if err != nil {
			return nil, err
		}
		if err := emit(Event{Node: u.Node, Step: u.Step, Next: u.Next, Update: u.Update}); err != nil {
			return nil, err
		}
	}
	final, _, err := stream.Final()
	if err != nil {
		return nil, err
	}
	return w.result(config, final), nil
}

func (w *workflow[S]) State(ctx context.Context, threadID string) (*Snapshot, error) {
	s, err := w.runnable.GetState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return toSnapshot(threadID, s), nil
}

func (w *workflow[S]) History(ctx context.Context, threadID string) ([]*Snapshot, error) {
	snaps, err := w.runnable.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, len(snaps))
	for i, s := range snaps {
		out[i] = toSnapshot(threadID, s)
	}
	return out, nil
}

func (w *workflow[S]) Mermaid() string {
	return graph.NewExporter(w.runnable.Graph()).DrawMermaid()
}

func (w *workflow[S]) DOT() string {
	return graph.NewExporter(w.runnable.Graph()).DrawDOT()
}

func toSnapshot[S any](threadID string, s *graph.StateSnapshot[S]) *Snapshot {
	return &Snapshot{
		ThreadID:     threadID,
		CheckpointID: s.CheckpointID,
		NodeName:     s.NodeName,
		Next:         s.Next,
		Step:         s.Step,
		CreatedAt:    s.CreatedAt,
		State:        s.Values,
	}
}

func requireQuestion(in Input) (string, error) {
	if in.Question == "" {
		return "", fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	return in.Question, nil
}
