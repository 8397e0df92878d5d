package runstore

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity bounds a Memory store created with a non-positive capacity.
const DefaultCapacity = 256

// Memory is an ephemeral, thread-safe Store.
type Memory struct {
	runs     sync.Map // Key: run id, Value: *Run
	mu       sync.Mutex
	order    []string
	capacity int
}

// NewMemory creates an empty store holding at most capacity runs.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

// Put implements Store. The oldest run is evicted when the store is full.
func (m *Memory) Put(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, loaded := m.runs.Swap(run.ID, run); loaded {
		return nil
	}
	m.order = append(m.order, run.ID)
	for len(m.order) > m.capacity {
		m.runs.Delete(m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (*Run, error) {
	run, ok := m.runs.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return run.(*Run), nil
}

// Len implements Store.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
