package gate

import (
	"sort"

	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/template"
)

// WithTemplateGates returns a clone of r extended with the gates a document
// declares. A declared gate may not shadow an existing one.
func (r *Registry) WithTemplateGates(gates map[string]template.GateSpec, source string) (*Registry, error) {
	out := r.Clone()
	for _, name := range sortedNames(gates) {
		spec := gates[name]
		path := source + ".gates." + name
		if _, exists := out.policies[name]; exists {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "gate %q is already defined", name)
		}
		if spec.When == "" {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "gate %q has no \"when\" expression", name)
		}
		expr, err := cgexpr.ParseExpression(spec.When, path+".when")
		if err != nil {
			return nil, err
		}
		out.policies[name] = &Policy{
			Name:        name,
			Description: spec.Description,
			Requires:    append([]string(nil), spec.Requires...),
			Predicate:   expressionPredicate(expr),
		}
	}
	return out, nil
}

func expressionPredicate(expr *cgexpr.Expression) Predicate {
	return func(s template.Scope) (bool, error) {
		return cgexpr.EvaluateBool(expr, s.Env.Variables(), s.Funcs)
	}
}

func sortedNames(gates map[string]template.GateSpec) []string {
	names := make([]string, 0, len(gates))
	for name := range gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
