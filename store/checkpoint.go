// Package store defines checkpoint persistence for graph runs. Backends live in
// the memory, redis, postgres and sqlite subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint represents the state of a thread after one step.
type Checkpoint struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	// NodeName is the node that produced this state.
	NodeName string `json:"node_name"`
	// Next is the node a resumed run starts from ("END" when the run finished).
	Next string `json:"next"`
	// Step is the 1-based invocation index within the thread.
	Step      int             `json:"step"`
	State     json.RawMessage `json:"state"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints of a thread ordered by step
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Latest returns the checkpoint with the highest step of a thread
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints of a thread
	Clear(ctx context.Context, threadID string) error
}
