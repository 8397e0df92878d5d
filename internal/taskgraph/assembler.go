package taskgraph

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/evalctx"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/gate"
	"github.com/vk/cigraph/internal/identity"
	"github.com/vk/cigraph/internal/template"
	"github.com/zclconf/go-cty/cty/function"
	"golang.org/x/sync/errgroup"
)

// DefaultDeadline is added to a task's creation time when its body sets no
// deadline.
const DefaultDeadline = time.Hour

// Options configures an Assembler. Zero values select defaults.
type Options struct {
	Workers         int
	DefaultDeadline time.Duration
	Gates           *gate.Registry
	Clock           clock.Clock
}

// Assembler compiles documents into graphs. It is safe for concurrent use;
// all per-run state lives in the allocator passed to Assemble.
type Assembler struct {
	workers  int
	deadline time.Duration
	gates    *gate.Registry
	clock    clock.Clock
	validate *validator.Validate
}

// New creates an Assembler.
func New(opts Options) *Assembler {
	a := &Assembler{
		workers:  opts.Workers,
		deadline: opts.DefaultDeadline,
		gates:    opts.Gates,
		clock:    opts.Clock,
		validate: validator.New(),
	}
	if a.workers <= 0 {
		a.workers = runtime.NumCPU()
	}
	if a.deadline <= 0 {
		a.deadline = DefaultDeadline
	}
	if a.gates == nil {
		a.gates = gate.Default()
	}
	if a.clock == nil {
		a.clock = clock.System{}
	}
	return a
}

// Validate statically checks doc without an environment.
func (a *Assembler) Validate(doc *template.Document) (*Report, error) {
	p, err := prepare(doc, a.gates)
	if err != nil {
		return nil, err
	}
	return p.report, nil
}

// outcome is the result of evaluating one entry.
type outcome struct {
	desc   *Descriptor
	labels []string
	skip   string
}

// Assemble evaluates doc against env. Identities are drawn from alloc, which
// must be fresh for every run.
func (a *Assembler) Assemble(ctx context.Context, doc *template.Document, env *evalctx.Environment, alloc *identity.Allocator) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	p, err := prepare(doc, a.gates)
	if err != nil {
		return nil, err
	}
	logger.Debug("Template passed static validation.", "source", doc.Source, "entries", len(doc.Tasks))

	if !env.Admitted() {
		logger.Info("Event produces no tasks.", "reason", env.Reason())
		return &Graph{Reason: env.Reason()}, nil
	}

	root := template.Scope{
		Env: env,
		Funcs: cgexpr.Functions(map[string]function.Function{
			FuncSlugID: cgexpr.StringFunc("label", alloc.Allocate),
		}),
		Path: doc.Source,
	}
	vars, err := template.Bind(doc.Let, root.At("let"))
	if err != nil {
		return nil, err
	}
	root.Env = env.With(vars)

	// Reserve every declared label up front so as_slugid calls made by
	// parallel entries cannot change which id a label receives.
	for _, entry := range doc.Tasks {
		if _, err := alloc.Allocate(entry.Label); err != nil {
			return nil, err
		}
	}

	outcomes := make([]outcome, len(doc.Tasks))
	errs := make([]error, len(doc.Tasks))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i := range doc.Tasks {
		g.Go(func() error {
			outcomes[i], errs[i] = a.evaluateEntry(ctx, p, i, root)
			return nil
		})
	}
	// Entry errors are kept in errs so the lowest index wins.
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	graph, err := a.link(doc, outcomes, alloc)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Task graph assembled.", "tasks", len(graph.Tasks), "skipped", len(graph.Skipped))
	return graph, nil
}

func (a *Assembler) evaluateEntry(ctx context.Context, p *prepared, i int, root template.Scope) (outcome, error) {
	entry := p.doc.Tasks[i]
	path := fmt.Sprintf("%s.tasks[%d]", p.doc.Source, i)
	logger := ctxlog.FromContext(ctx).With("label", entry.Label)

	s := root
	s.Path = path
	s.Now = template.LazyNow(a.clock)

	if entry.If != "" {
		ok, err := template.EvalCondition(entry.If, s.At("if"))
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			logger.Debug("Condition is false, skipping task.")
			return outcome{skip: "condition is false"}, nil
		}
	}

	var policy *gate.Policy
	if entry.Gate != "" {
		policy, _ = p.gates.Lookup(entry.Gate)
		ok, err := policy.Admit(s.At("gate"))
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			logger.Debug("Gate is closed, skipping task.", "gate", entry.Gate)
			return outcome{skip: fmt.Sprintf("gate %q is closed", entry.Gate)}, nil
		}
	}

	labels, err := evalLabels(entry.Dependencies, s.At("dependencies"))
	if err != nil {
		return outcome{}, err
	}
	if policy != nil {
		if err := policy.CheckDependencies(labels, path); err != nil {
			return outcome{}, err
		}
	}

	body, present, err := evalMapping(entry.Task, s.At("task"))
	if err != nil {
		return outcome{}, err
	}
	if !present {
		logger.Debug("Task body is absent, skipping task.")
		return outcome{skip: "task body is absent"}, nil
	}
	defaults, _, err := evalMapping(p.doc.Defaults, s.At("defaults"))
	if err != nil {
		return outcome{}, err
	}
	if defaults == nil {
		defaults = map[string]any{}
	}
	if err := mergo.Merge(&defaults, body, mergo.WithOverride); err != nil {
		return outcome{}, evalerr.New(evalerr.ErrInvalidTemplate, path, "cannot merge defaults: %v", err)
	}

	desc, err := decodeDescriptor(defaults, s.Now, a.deadline, path+".task")
	if err != nil {
		return outcome{}, err
	}
	desc.Label = entry.Label
	desc.Gate = entry.Gate
	if desc.Metadata.Name == "" {
		desc.Metadata.Name = entry.Label
	}

	logger.Debug("Task evaluated.", "dependencies", labels)
	return outcome{desc: desc, labels: labels}, nil
}

// link attaches the reserved identities and resolves dependency labels. A
// label must name an included entry declared earlier.
func (a *Assembler) link(doc *template.Document, outcomes []outcome, alloc *identity.Allocator) (*Graph, error) {
	graph := &Graph{}
	declared := make(map[string]int, len(doc.Tasks))
	for i, entry := range doc.Tasks {
		declared[entry.Label] = i
	}

	for i, out := range outcomes {
		if out.desc == nil {
			graph.Skipped = append(graph.Skipped, Skip{Label: doc.Tasks[i].Label, Reason: out.skip})
			continue
		}
		id, _ := alloc.Lookup(doc.Tasks[i].Label)
		out.desc.TaskID = id
		graph.Tasks = append(graph.Tasks, out.desc)
	}

	for i, out := range outcomes {
		if out.desc == nil {
			continue
		}
		label := doc.Tasks[i].Label
		path := fmt.Sprintf("%s.tasks[%d]", doc.Source, i)

		deps := make([]string, 0, len(out.labels))
		for _, dep := range out.labels {
			if err := checkStaticDependency(label, dep, i, declared, path); err != nil {
				return nil, err
			}
			if skipped := outcomes[declared[dep]].desc == nil; skipped {
				return nil, evalerr.New(evalerr.ErrDanglingDependency, path, "task %q depends on %q, which was skipped", label, dep)
			}
			id, _ := alloc.Lookup(dep)
			deps = append(deps, id)
		}
		out.desc.Dependencies = deps

		if err := a.validate.Struct(out.desc); err != nil {
			return nil, validationError(err, path)
		}
	}
	return graph, nil
}

func evalMapping(node any, s template.Scope) (map[string]any, bool, error) {
	if node == nil {
		return nil, false, nil
	}
	val, present, err := template.Eval(node, s)
	if err != nil || !present {
		return nil, present, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "must evaluate to a mapping, got %T", val)
	}
	return m, true, nil
}

// evalLabels evaluates a dependency node to a de-duplicated label list.
func evalLabels(node any, s template.Scope) ([]string, error) {
	if node == nil {
		return nil, nil
	}
	val, present, err := template.Eval(node, s)
	if err != nil || !present || val == nil {
		return nil, err
	}

	var items []any
	switch v := val.(type) {
	case string:
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "dependencies must be a list of labels, got %T", val)
	}

	seen := make(map[string]struct{}, len(items))
	labels := make([]string, 0, len(items))
	for _, item := range items {
		label, ok := item.(string)
		if !ok {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "dependency label must be a string, got %T", item)
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels, nil
}
