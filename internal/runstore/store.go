package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/vk/cigraph/internal/taskgraph"
)

// ErrNotFound is returned for ids the store never saw or already evicted.
var ErrNotFound = errors.New("run not found")

// Run is one evaluation as seen by the server.
type Run struct {
	ID       string           `json:"id"`
	TasksFor string           `json:"tasks_for"`
	At       time.Time        `json:"at"`
	Graph    *taskgraph.Graph `json:"graph,omitempty"`
	Error    string           `json:"error,omitempty"`
	Kind     string           `json:"kind,omitempty"`
}

// Store records and retrieves runs.
type Store interface {
	// Put records run, replacing any run with the same id.
	Put(ctx context.Context, run *Run) error
	// Get returns the run with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Run, error)
	// Len reports how many runs are held.
	Len() int
}
