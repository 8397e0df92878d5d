package taskgraph

import (
	"fmt"
	"strings"

	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/gate"
	"github.com/vk/cigraph/internal/template"
	"github.com/zclconf/go-cty/cty/function"
)

// FuncSlugID is the name of the impure identity function templates use to
// refer to another task's id.
const FuncSlugID = "as_slugid"

// Report summarises a document that passed static validation.
type Report struct {
	Source    string   `json:"source"`
	Labels    []string `json:"labels"`
	Gates     []string `json:"gates"`
	Functions []string `json:"functions"`
	Variables []string `json:"variables"`
}

// prepared is a statically validated document.
type prepared struct {
	doc    *template.Document
	gates  *gate.Registry
	report *Report
}

// knownFunctions lists every function name a template may call.
func knownFunctions() []string {
	return cgexpr.FunctionNames(cgexpr.Functions(map[string]function.Function{
		FuncSlugID: cgexpr.StringFunc("label", func(s string) (string, error) { return s, nil }),
	}))
}

// prepare runs every check that needs no environment. Nothing it rejects
// can produce a task.
func prepare(doc *template.Document, base *gate.Registry) (*prepared, error) {
	if doc == nil {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, "", "no template document")
	}
	src := doc.Source

	gates, err := base.WithTemplateGates(doc.Gates, src)
	if err != nil {
		return nil, err
	}

	exprs := cgexpr.NewContainer()
	for name, spec := range doc.Gates {
		if err := template.AnalyzeExpression(spec.When, src+".gates."+name+".when", exprs); err != nil {
			return nil, err
		}
	}
	if err := template.Analyze(doc.Let, src+".let", exprs); err != nil {
		return nil, err
	}
	if err := template.Analyze(doc.Defaults, src+".defaults", exprs); err != nil {
		return nil, err
	}

	declared := make(map[string]int, len(doc.Tasks))
	labels := make([]string, 0, len(doc.Tasks))
	for i, entry := range doc.Tasks {
		path := fmt.Sprintf("%s.tasks[%d]", src, i)

		if strings.TrimSpace(entry.Label) == "" {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "label is required")
		}
		if first, dup := declared[entry.Label]; dup {
			return nil, evalerr.New(evalerr.ErrDuplicateLabel, path, "label %q already declared by tasks[%d]", entry.Label, first)
		}
		declared[entry.Label] = i
		labels = append(labels, entry.Label)

		if entry.If != "" {
			if err := template.AnalyzeExpression(entry.If, path+".if", exprs); err != nil {
				return nil, err
			}
		}

		body, ok := entry.Task.(map[string]any)
		if !ok {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+".task", "task body must be a mapping, got %T", entry.Task)
		}
		for _, key := range reservedKeys {
			if _, ok := body[key]; ok {
				return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+".task", "%q is assigned by the evaluator and may not be set", key)
			}
		}
		if err := template.Analyze(body, path+".task", exprs); err != nil {
			return nil, err
		}
		if err := template.Analyze(entry.Dependencies, path+".dependencies", exprs); err != nil {
			return nil, err
		}

		deps, literal := literalLabels(entry.Dependencies)
		if entry.Gate != "" {
			policy, ok := gates.Lookup(entry.Gate)
			if !ok {
				return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+".gate", "unknown gate %q (known: %s)", entry.Gate, strings.Join(gates.Names(), ", "))
			}
			if literal {
				if err := policy.CheckDependencies(deps, path); err != nil {
					return nil, err
				}
			}
		}
	}

	for i, entry := range doc.Tasks {
		deps, _ := literalLabels(entry.Dependencies)
		for _, dep := range deps {
			if err := checkStaticDependency(entry.Label, dep, i, declared, fmt.Sprintf("%s.tasks[%d]", src, i)); err != nil {
				return nil, err
			}
		}
	}

	if unknown := exprs.UnknownFunctions(knownFunctions()); len(unknown) > 0 {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, src, "call to unknown function(s): %s", strings.Join(unknown, ", "))
	}

	return &prepared{
		doc:   doc,
		gates: gates,
		report: &Report{
			Source:    src,
			Labels:    labels,
			Gates:     gates.Names(),
			Functions: exprs.CalledFunctions(),
			Variables: exprs.RootNames(),
		},
	}, nil
}

// checkStaticDependency requires dep to be declared before the entry at
// index i, which keeps declaration order topological.
func checkStaticDependency(label, dep string, i int, declared map[string]int, path string) error {
	if dep == label {
		return evalerr.New(evalerr.ErrDanglingDependency, path, "task %q depends on itself", label)
	}
	at, ok := declared[dep]
	if !ok {
		return evalerr.New(evalerr.ErrDanglingDependency, path, "task %q depends on undeclared label %q", label, dep)
	}
	if at > i {
		return evalerr.New(evalerr.ErrDanglingDependency, path, "task %q depends on %q, which is declared after it", label, dep)
	}
	return nil
}

// literalLabels extracts the dependency labels knowable without evaluation.
// literal is true when the whole node is a plain list of plain strings.
func literalLabels(node any) (labels []string, literal bool) {
	switch v := node.(type) {
	case nil:
		return nil, true
	case string:
		if cgexpr.HasInterpolation(v) {
			return nil, false
		}
		return []string{v}, true
	case []any:
		literal = true
		for _, item := range v {
			s, ok := item.(string)
			if !ok || cgexpr.HasInterpolation(s) {
				literal = false
				continue
			}
			labels = append(labels, s)
		}
		return labels, literal
	default:
		return nil, false
	}
}
