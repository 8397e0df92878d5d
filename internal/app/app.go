package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/engine"
	"github.com/vk/cigraph/internal/identity"
	"github.com/vk/cigraph/internal/publish"
	"github.com/vk/cigraph/internal/runstore"
	"github.com/vk/cigraph/internal/template"
)

// Option customises an App beyond its Config.
type Option func(*App)

// WithClock replaces the system clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithIDs replaces the random task id generator.
func WithIDs(g identity.Generator) Option {
	return func(a *App) { a.ids = g }
}

// WithPublisher replaces the publisher Run would otherwise build from
// the config.
func WithPublisher(p publish.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRunStore replaces the in-memory store of webhook runs.
func WithRunStore(s runstore.Store) Option {
	return func(a *App) { a.runs = s }
}

// WithInput sets where an EventPath of "-" is read from.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.inR = r }
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	inR       io.Reader
	logger    *slog.Logger
	config    *Config
	doc       *template.Document
	engine    *engine.Engine
	publisher publish.Publisher
	runs      runstore.Store
	clock     clock.Clock
	ids       identity.Generator
}

// NewApp builds an App whose results go to outW and whose logs go to logW.
// The template is loaded and statically validated up front, so a broken
// pipeline fails before any event is read.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	a := &App{
		outW:   outW,
		inR:    os.Stdin,
		logger: newLogger(cfg, logW),
		config: cfg,
		runs:   runstore.NewMemory(runstore.DefaultCapacity),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Debug("Logger configured successfully.")

	doc, err := loadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, err
	}
	a.doc = doc
	a.logger.Debug("Template loaded.", "source", doc.Source, "tasks", len(doc.Tasks))

	a.engine = engine.New(engine.Config{
		Workers:         cfg.Workers,
		DefaultDeadline: cfg.DefaultDeadline,
		Clock:           a.clock,
		IDs:             a.ids,
	})
	if cfg.Mode != ModeValidate {
		if _, err := a.engine.Validate(doc); err != nil {
			return nil, fmt.Errorf("template %s is invalid: %w", doc.Source, err)
		}
		a.logger.Debug("Template validation passed.")
	}
	return a, nil
}

// Context returns ctx carrying the App's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) now() time.Time {
	if a.clock == nil {
		return clock.System{}.Now()
	}
	return a.clock.Now()
}

// Document returns the loaded template. This is primarily for testing.
func (a *App) Document() *template.Document {
	return a.doc
}
