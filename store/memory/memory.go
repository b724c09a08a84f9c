package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/ragflow/store"
)

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	threads     map[string][]string
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		threads:     make(map[string][]string),
	}
}

// Save stores a copy of the checkpoint. Saving an existing ID replaces it.
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}
	cp := clone(checkpoint)

	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.checkpoints[cp.ID]
	if exists && old.ThreadID != cp.ThreadID {
		m.removeFromThread(old.ThreadID, old.ID)
		exists = false
	}
	if !exists {
		m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], cp.ID)
	}
	m.checkpoints[cp.ID] = cp
	return nil
}

// Load retrieves a checkpoint by ID
func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
	}
	return clone(cp), nil
}

// List returns all checkpoints of a thread ordered by step
func (m *MemoryCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.threads[threadID]
	result := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		result = append(result, clone(m.checkpoints[id]))
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Step < result[j].Step })
	return result, nil
}

// Latest returns the checkpoint with the highest step of a thread
func (m *MemoryCheckpointStore) Latest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	list, err := m.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return list[len(list)-1], nil
}

// Delete removes a checkpoint
func (m *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	m.removeFromThread(cp.ThreadID, checkpointID)
	delete(m.checkpoints, checkpointID)
	return nil
}

// Clear removes all checkpoints of a thread
func (m *MemoryCheckpointStore) Clear(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.threads[threadID] {
		delete(m.checkpoints, id)
	}
	delete(m.threads, threadID)
	return nil
}

func (m *MemoryCheckpointStore) removeFromThread(threadID, id string) {
	ids := m.threads[threadID]
	for i, existing := range ids {
		if existing == id {
			m.threads[threadID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.threads[threadID]) == 0 {
		delete(m.threads, threadID)
	}
}

func clone(cp *store.Checkpoint) *store.Checkpoint {
	c := *cp
	c.State = append([]byte(nil), cp.State...)
	if cp.Metadata != nil {
		c.Metadata = make(map[string]any, len(cp.Metadata))
		for k, v := range cp.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
