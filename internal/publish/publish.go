package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/taskgraph"
)

// Publisher delivers a finished graph to its consumer.
type Publisher interface {
	Publish(ctx context.Context, g *taskgraph.Graph) error
	Close() error
}

// WriterPublisher writes each graph as one JSON document.
type WriterPublisher struct {
	mu     sync.Mutex
	w      io.Writer
	indent bool
}

// NewWriter returns a publisher writing to w. Indented output is meant for
// terminals.
func NewWriter(w io.Writer, indent bool) *WriterPublisher {
	return &WriterPublisher{w: w, indent: indent}
}

// Publish implements Publisher.
func (p *WriterPublisher) Publish(ctx context.Context, g *taskgraph.Graph) error {
	if g == nil {
		return fmt.Errorf("nothing to publish")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	enc := json.NewEncoder(p.w)
	if p.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Graph written.", "tasks", len(g.Tasks))
	return nil
}

// Close implements Publisher. The underlying writer is owned by the caller.
func (p *WriterPublisher) Close() error { return nil }

// Discard accepts every graph and drops it.
type Discard struct{}

func (Discard) Publish(context.Context, *taskgraph.Graph) error { return nil }
func (Discard) Close() error                                     { return nil }

// toWire converts a graph to the plain JSON value tree sent over the wire.
func toWire(g *taskgraph.Graph) (map[string]any, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return out, nil
}
