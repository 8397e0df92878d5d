package taskgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/cigraph/internal/dag"
	"github.com/vk/cigraph/internal/evalerr"
)

// Skip records an entry that was evaluated but left out of the graph.
type Skip struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// Graph is the ordered result of one evaluation.
type Graph struct {
	Tasks   []*Descriptor
	Skipped []Skip
	// Reason is set when the whole evaluation was a soft no-op.
	Reason error
}

// Empty reports whether the graph holds no tasks.
func (g *Graph) Empty() bool { return len(g.Tasks) == 0 }

// Lookup finds a task by identity.
func (g *Graph) Lookup(taskID string) (*Descriptor, bool) {
	for _, d := range g.Tasks {
		if d.TaskID == taskID {
			return d, true
		}
	}
	return nil, false
}

// ByLabel finds a task by its template label.
func (g *Graph) ByLabel(label string) (*Descriptor, bool) {
	for _, d := range g.Tasks {
		if d.Label == label {
			return d, true
		}
	}
	return nil, false
}

// Labels returns the labels of the included tasks in graph order.
func (g *Graph) Labels() []string {
	out := make([]string, 0, len(g.Tasks))
	for _, d := range g.Tasks {
		out = append(out, d.Label)
	}
	return out
}

// TaskIDs returns the identities of the included tasks in graph order.
func (g *Graph) TaskIDs() []string {
	out := make([]string, 0, len(g.Tasks))
	for _, d := range g.Tasks {
		out = append(out, d.TaskID)
	}
	return out
}

// Validate checks the structural invariants: identities are unique, every
// dependency resolves to a task of this graph and there are no cycles.
func (g *Graph) Validate() error {
	d := dag.New()
	for _, t := range g.Tasks {
		if d.Has(t.TaskID) {
			return evalerr.New(evalerr.ErrDuplicateLabel, t.Label, "task id %q is not unique", t.TaskID)
		}
		d.AddNode(t.TaskID)
	}

	var errs []string
	for _, t := range g.Tasks {
		for _, dep := range t.Dependencies {
			if !d.Has(dep) {
				errs = append(errs, fmt.Sprintf("task %q depends on unknown id %q", t.Label, dep))
				continue
			}
			if err := d.AddEdge(dep, t.TaskID); err != nil {
				errs = append(errs, fmt.Sprintf("task %q: %v", t.Label, err))
			}
		}
	}
	if len(errs) > 0 {
		return evalerr.New(evalerr.ErrDanglingDependency, "", "graph validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := d.DetectCycles(); err != nil {
		return evalerr.New(evalerr.ErrInvalidTemplate, "", "%v", err)
	}
	return nil
}

// MarshalJSON renders the graph for hand-off to a scheduler.
func (g *Graph) MarshalJSON() ([]byte, error) {
	tasks := g.Tasks
	if tasks == nil {
		tasks = []*Descriptor{}
	}
	out := struct {
		Tasks   []*Descriptor `json:"tasks"`
		Skipped []Skip        `json:"skipped,omitempty"`
		Reason  string        `json:"reason,omitempty"`
	}{Tasks: tasks, Skipped: g.Skipped}
	if g.Reason != nil {
		out.Reason = g.Reason.Error()
	}
	return json.Marshal(out)
}
