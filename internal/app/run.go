package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/publish"
)

// Run executes the configured mode.
func (a *App) Run(ctx context.Context) error {
	ctx = a.Context(ctx)
	a.logger.Debug("App.Run method started.")

	switch a.config.Mode {
	case ModeValidate:
		return a.runValidate()
	case ModeServe:
		pub, err := a.openPublisher(ctx, publish.Discard{})
		if err != nil {
			return err
		}
		defer pub.Close()
		return a.Serve(ctx, pub)
	default:
		pub, err := a.openPublisher(ctx, publish.NewWriter(a.outW, true))
		if err != nil {
			return err
		}
		defer pub.Close()
		return a.runEvaluate(ctx, pub)
	}
}

func (a *App) runValidate() error {
	report, err := a.engine.Validate(a.doc)
	if err != nil {
		return fmt.Errorf("template %s is invalid: %w", a.doc.Source, err)
	}
	a.logger.Info("Template is valid.", "source", report.Source, "tasks", len(report.Labels))

	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (a *App) runEvaluate(ctx context.Context, pub publish.Publisher) error {
	tasksFor := event.Classification(a.config.TasksFor)
	ev, err := a.readEvent(a.config.EventPath, tasksFor)
	if err != nil {
		return err
	}

	graph, err := a.engine.Evaluate(ctx, a.doc, tasksFor, ev)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	if graph.Reason != nil {
		a.logger.Warn("No tasks produced.", "reason", graph.Reason)
	} else {
		a.logger.Info("Task graph evaluated.", "tasks", len(graph.Tasks), "skipped", len(graph.Skipped))
	}

	if err := pub.Publish(ctx, graph); err != nil {
		return fmt.Errorf("failed to publish task graph: %w", err)
	}
	return nil
}

// openPublisher returns the injected publisher, a socket.io publisher when a
// URL is configured, or fallback.
func (a *App) openPublisher(ctx context.Context, fallback publish.Publisher) (publish.Publisher, error) {
	if a.publisher != nil {
		return a.publisher, nil
	}
	if a.config.PublishURL == "" {
		return fallback, nil
	}
	pub, err := publish.DialSocketIO(ctx, publish.SocketIOConfig{
		URL:                a.config.PublishURL,
		Namespace:          a.config.PublishNamespace,
		Event:              a.config.PublishEvent,
		AckEvent:           a.config.PublishAckEvent,
		InsecureSkipVerify: a.config.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scheduler: %w", err)
	}
	return pub, nil
}
