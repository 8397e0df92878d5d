package gate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/cigraph/internal/evalctx"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/refs"
	"github.com/vk/cigraph/internal/template"
)

// TagRelease is the name of the built-in release gate.
const TagRelease = "tag-release"

// Predicate decides whether a gated task is admitted.
type Predicate func(s template.Scope) (bool, error)

// Policy is one named gate.
type Policy struct {
	Name        string
	Description string
	// Requires lists labels every gated task must depend on.
	Requires  []string
	Predicate Predicate
}

// Admit evaluates the policy's predicate.
func (p *Policy) Admit(s template.Scope) (bool, error) {
	return p.Predicate(s)
}

// CheckDependencies enforces that a gated task is never dependency-free and
// carries every label the policy requires.
func (p *Policy) CheckDependencies(deps []string, path string) error {
	if len(deps) == 0 {
		return evalerr.New(evalerr.ErrUngatedDeployment, path, "gate %q admits a task with no dependencies", p.Name)
	}
	have := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		have[d] = struct{}{}
	}
	var missing []string
	for _, req := range p.Requires {
		if _, ok := have[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return evalerr.New(evalerr.ErrUngatedDeployment, path, "gate %q requires dependencies %v", p.Name, missing)
	}
	return nil
}

// Registry maps gate names to policies.
type Registry struct {
	policies map[string]*Policy
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{policies: make(map[string]*Policy)}
}

// Default returns a registry holding the built-in policies.
func Default() *Registry {
	r := New()
	r.Register(&Policy{
		Name:        TagRelease,
		Description: "admits pushes of tags",
		Predicate:   tagRelease,
	})
	return r
}

// Register adds p. Registering a name twice is a programming error.
func (r *Registry) Register(p *Policy) {
	if _, exists := r.policies[p.Name]; exists {
		panic(fmt.Sprintf("gate policy with name '%s' already registered", p.Name))
	}
	slog.Debug("Registering gate policy.", "name", p.Name)
	r.policies[p.Name] = p
}

// Lookup returns the policy called name.
func (r *Registry) Lookup(name string) (*Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// Names returns the registered gate names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy that can be extended per document.
func (r *Registry) Clone() *Registry {
	c := New()
	for name, p := range r.policies {
		c.policies[name] = p
	}
	return c
}

func tagRelease(s template.Scope) (bool, error) {
	if event.Classification(s.Env.String(evalctx.VarTasksFor)) != event.TasksForPush {
		return false, nil
	}
	return refs.Parse(s.Env.String(evalctx.VarHeadBranch)).IsTag(), nil
}
