package engine

import (
	"context"
	"time"

	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/evalctx"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/gate"
	"github.com/vk/cigraph/internal/identity"
	"github.com/vk/cigraph/internal/taskgraph"
	"github.com/vk/cigraph/internal/template"
)

// Config holds the capabilities and limits of an Engine.
type Config struct {
	Workers         int
	DefaultDeadline time.Duration
	Clock           clock.Clock
	IDs             identity.Generator
	Gates           *gate.Registry
}

// Engine evaluates documents against events. It holds no per-run state and
// is safe for concurrent use.
type Engine struct {
	assembler *taskgraph.Assembler
	ids       identity.Generator
}

// New creates an Engine. Nil capabilities fall back to the system clock,
// random slug ids and the built-in gates.
func New(cfg Config) *Engine {
	ids := cfg.IDs
	if ids == nil {
		ids = identity.Slug{}
	}
	return &Engine{
		assembler: taskgraph.New(taskgraph.Options{
			Workers:         cfg.Workers,
			DefaultDeadline: cfg.DefaultDeadline,
			Gates:           cfg.Gates,
			Clock:           cfg.Clock,
		}),
		ids: ids,
	}
}

// Evaluate compiles doc for one event. A soft no-op returns an empty graph
// whose Reason explains why; every other failure returns a nil graph.
func (e *Engine) Evaluate(ctx context.Context, doc *template.Document, tasksFor event.Classification, ev *event.Event) (*taskgraph.Graph, error) {
	if doc == nil {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, "", "no template document")
	}
	ctx = ctxlog.With(ctx, "tasks_for", string(tasksFor))
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Evaluation started.", "source", doc.Source)

	env, err := evalctx.Build(tasksFor, ev)
	if err != nil {
		return nil, err
	}
	if env.Admitted() {
		logger.Debug("Environment built.",
			"head_branch", env.String(evalctx.VarHeadBranch),
			"head_rev", env.String(evalctx.VarHeadRev),
			"repository", env.String(evalctx.VarRepository),
		)
	}

	graph, err := e.assembler.Assemble(ctx, doc, env, identity.NewAllocator(e.ids))
	if err != nil {
		logger.Error("Evaluation failed.", "error", err)
		return nil, err
	}
	return graph, nil
}

// Validate statically checks doc.
func (e *Engine) Validate(doc *template.Document) (*taskgraph.Report, error) {
	return e.assembler.Validate(doc)
}
