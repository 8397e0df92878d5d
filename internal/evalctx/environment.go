// Package evalctx builds the read-only variable environment that every
// expression of a run is evaluated against.
package evalctx

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Variable names exposed to templates.
const (
	VarTasksFor    = "tasks_for"
	VarEvent       = "event"
	VarUser        = "user"
	VarHeadBranch  = "head_branch"
	VarHeadRev     = "head_rev"
	VarRepository  = "repository"
	VarHeadRefKind = "head_ref_kind"
)

// Environment is an immutable name to value mapping. Child environments
// created with With shadow their parent's names without modifying it.
type Environment struct {
	parent   *Environment
	vars     map[string]cty.Value
	admitted bool
	reason   error
}

// New creates a root environment holding vars.
func New(vars map[string]cty.Value) *Environment {
	return &Environment{vars: copyVars(vars), admitted: true}
}

// Lookup resolves name, searching enclosing scopes outward.
func (e *Environment) Lookup(name string) (cty.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return cty.NilVal, false
}

// With returns a child scope in which bindings shadow existing names.
func (e *Environment) With(bindings map[string]cty.Value) *Environment {
	if len(bindings) == 0 {
		return e
	}
	return &Environment{
		parent:   e,
		vars:     copyVars(bindings),
		admitted: e.admitted,
		reason:   e.reason,
	}
}

// Variables flattens the scope chain into one map suitable for an
// hcl.EvalContext. Inner scopes win.
func (e *Environment) Variables() map[string]cty.Value {
	var chain []*Environment
	for env := e; env != nil; env = env.parent {
		chain = append(chain, env)
	}
	out := make(map[string]cty.Value)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

// Names returns every visible name, sorted.
func (e *Environment) Names() []string {
	vars := e.Variables()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Admitted reports whether the event should produce tasks at all.
func (e *Environment) Admitted() bool { return e.admitted }

// Reason explains why the environment is not admitted, or nil.
func (e *Environment) Reason() error { return e.reason }

// String returns the string variable name or "" when it is absent or not a
// known string.
func (e *Environment) String(name string) string {
	v, ok := e.Lookup(name)
	if !ok || v.IsNull() || !v.IsKnown() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

func copyVars(in map[string]cty.Value) map[string]cty.Value {
	out := make(map[string]cty.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
