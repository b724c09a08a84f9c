package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ragflow/store"
)

// StateSnapshot represents a saved state of a thread.
type StateSnapshot[S any] struct {
	Values S
	// Next is the node a Resume would run first, END when the run finished.
	Next         string
	Step         int
	NodeName     string
	CheckpointID string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// saveCheckpoint persists the state after a step when the run has a thread.
func (r *StateRunnable[S]) saveCheckpoint(ctx context.Context, config *Config, step int, node, next string, state S) error {
	if r.checkpointer == nil || config.ThreadID == "" {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint after node %s: failed to marshal state: %w", node, err)
	}

	metadata := map[string]any{
		"graph":  r.name,
		"run_id": GetRunID(ctx),
	}
	if len(config.Tags) > 0 {
		metadata["tags"] = config.Tags
	}
	maps.Copy(metadata, config.Metadata)

	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  config.ThreadID,
		NodeName:  node,
		Next:      next,
		Step:      step,
		State:     data,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if err := r.checkpointer.Save(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint after node %s: %w", node, err)
	}
	return nil
}

func (r *StateRunnable[S]) latest(ctx context.Context, threadID string) (*store.Checkpoint, S, error) {
	var zero S
	if r.checkpointer == nil {
		return nil, zero, configErrorf("", "runnable has no checkpointer")
	}
	if threadID == "" {
		return nil, zero, configErrorf("", "thread id is required")
	}

	cp, err := r.checkpointer.Latest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, zero, fmt.Errorf("%w: %s", ErrNoCheckpoint, threadID)
	}
	if err != nil {
		return nil, zero, fmt.Errorf("failed to load checkpoint of thread %s: %w", threadID, err)
	}

	state, err := decodeState[S](cp)
	if err != nil {
		return nil, zero, err
	}
	return cp, state, nil
}

// lastStep returns the step of the newest checkpoint of the run's thread, so a
// new run on a used thread numbers its steps after the saved ones. It is 0 when
// nothing is checkpointed.
func (r *StateRunnable[S]) lastStep(ctx context.Context, config *Config) (int, error) {
	if r.checkpointer == nil || config.ThreadID == "" {
		return 0, nil
	}
	cp, err := r.checkpointer.Latest(ctx, config.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint of thread %s: %w", config.ThreadID, err)
	}
	return cp.Step, nil
}

func decodeState[S any](cp *store.Checkpoint) (S, error) {
	var state S
	if len(cp.State) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, fmt.Errorf("checkpoint %s: failed to unmarshal state: %w", cp.ID, err)
	}
	return state, nil
}

func (r *StateRunnable[S]) resumeRun(ctx context.Context, config *Config) (run[S], bool, error) {
	if config == nil {
		return run[S]{}, false, configErrorf("", "thread id is required")
	}
	cp, state, err := r.latest(ctx, config.ThreadID)
	if err != nil {
		return run[S]{}, false, err
	}
	in := run[S]{state: state, start: cp.Next, step: cp.Step, config: config}
	if cp.Next == END {
		return in, true, nil
	}
	if !r.graph.known(cp.Next) {
		return run[S]{}, false, configErrorf(cp.Next, "checkpoint %s points to an unknown node", cp.ID)
	}
	return in, false, nil
}

// Resume continues the thread named by config.ThreadID from its latest checkpoint.
// A finished thread returns its saved state without running anything. The step
// index continues from the checkpoint while the recursion limit applies to this
// call only.
func (r *StateRunnable[S]) Resume(ctx context.Context, config *Config) (S, error) {
	in, done, err := r.resumeRun(ctx, config)
	if err != nil || done {
		return in.state, err
	}
	state, _, err := r.execute(ctx, in, nil)
	return state, err
}

// ResumeStream is the streaming form of Resume.
func (r *StateRunnable[S]) ResumeStream(ctx context.Context, config *Config) (*Stream[S], error) {
	in, _, err := r.resumeRun(ctx, config)
	if err != nil {
		return nil, err
	}
	return r.stream(ctx, in), nil
}

// GetState returns the latest snapshot of a thread.
func (r *StateRunnable[S]) GetState(ctx context.Context, threadID string) (*StateSnapshot[S], error) {
	cp, state, err := r.latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return snapshot(cp, state), nil
}

// History returns every snapshot of a thread ordered by step.
func (r *StateRunnable[S]) History(ctx context.Context, threadID string) ([]*StateSnapshot[S], error) {
	if r.checkpointer == nil {
		return nil, configErrorf("", "runnable has no checkpointer")
	}
	cps, err := r.checkpointer.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints of thread %s: %w", threadID, err)
	}
	out := make([]*StateSnapshot[S], 0, len(cps))
	for _, cp := range cps {
		state, err := decodeState[S](cp)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot(cp, state))
	}
	return out, nil
}

// UpdateState merges update into the latest state of a thread through the graph
// schema and saves the result as a new checkpoint attributed to asNode. The next
// node is unchanged, so a following Resume sees the edited state.
func (r *StateRunnable[S]) UpdateState(ctx context.Context, config *Config, asNode string, update S) (*StateSnapshot[S], error) {
	if config == nil {
		return nil, configErrorf("", "thread id is required")
	}
	cp, state, err := r.latest(ctx, config.ThreadID)
	if err != nil {
		return nil, err
	}
	merged, err := r.schema.Update(state, update)
	if err != nil {
		return nil, fmt.Errorf("state update failed: %w", err)
	}
	if asNode == "" {
		asNode = cp.NodeName
	}
	if err := r.saveCheckpoint(ctx, config, cp.Step+1, asNode, cp.Next, merged); err != nil {
		return nil, err
	}
	return r.GetState(ctx, config.ThreadID)
}

func snapshot[S any](cp *store.Checkpoint, state S) *StateSnapshot[S] {
	return &StateSnapshot[S]{
		Values:       state,
		Next:         cp.Next,
		Step:         cp.Step,
		NodeName:     cp.NodeName,
		CheckpointID: cp.ID,
		Metadata:     cp.Metadata,
		CreatedAt:    cp.Timestamp,
	}
}
