package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/publish"
	"github.com/vk/cigraph/internal/runstore"
	"github.com/vk/cigraph/internal/taskgraph"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// evaluateRequest is the body of POST /v1/evaluate.
type evaluateRequest struct {
	TasksFor string          `json:"tasks_for"`
	Event    json.RawMessage `json:"event"`
}

// webhookResponse acknowledges an accepted GitHub delivery.
type webhookResponse struct {
	Delivery string           `json:"delivery,omitempty"`
	TasksFor string           `json:"tasks_for"`
	TaskIDs  []string         `json:"task_ids"`
	Skipped  []taskgraph.Skip `json:"skipped,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Router builds the HTTP API. Graphs produced by webhooks go to pub.
func (a *App) Router(pub publish.Publisher) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", a.healthHandler)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", a.evaluateHandler)
		r.Post("/webhooks/github", a.webhookHandler(pub))
		r.Get("/runs/{id}", a.runHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "endpoint not found"})
	})
	return r
}

// Serve runs the HTTP server until ctx ends, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context, pub publish.Publisher) error {
	logger := ctxlog.FromContext(ctx)
	server := &http.Server{
		Addr:              a.config.Listen,
		Handler:           a.Router(pub),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting.", "address", a.config.Listen)
		// ListenAndServe always returns ErrServerClosed after Shutdown.
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("Shutting down server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed.", "error", err)
		return err
	}
	logger.Debug("Server shut down gracefully.")
	return nil
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := a.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))
		logger.Debug("Request handled.", "status", ww.Status(), "duration", time.Since(start))
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"template": a.doc.Source,
	})
}

func (a *App) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("malformed request: %v", err)})
		return
	}
	if req.TasksFor == "" || len(req.Event) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tasks_for and event are required"})
		return
	}

	tasksFor := event.Classification(req.TasksFor)
	ev, err := event.Decode(event.KindFor(tasksFor), req.Event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	graph, err := a.engine.Evaluate(r.Context(), a.doc, tasksFor, ev)
	if err != nil {
		writeEvalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (a *App) webhookHandler(pub publish.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := ctxlog.FromContext(ctx)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventSize))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("failed to read body: %v", err)})
			return
		}
		if a.config.WebhookSecret != "" {
			if err := verifySignature(a.config.WebhookSecret, r.Header.Get(signatureHeader), body); err != nil {
				logger.Warn("Rejected webhook delivery.", "error", err)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
				return
			}
		}

		name := r.Header.Get(eventHeader)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing " + eventHeader + " header"})
			return
		}
		if name == pingEvent {
			writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
			return
		}

		tasksFor := event.ClassifyGitHubEvent(name)
		ev, err := event.Decode(event.Kind(name), body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		delivery := r.Header.Get(deliveryHeader)
		if delivery == "" {
			delivery = uuid.NewString()
		}

		graph, err := a.engine.Evaluate(ctx, a.doc, tasksFor, ev)
		a.record(ctx, delivery, tasksFor, graph, err)
		if err != nil {
			writeEvalError(w, err)
			return
		}
		if graph.Reason != nil {
			logger.Info("Delivery produces no tasks, nothing to publish.", "delivery", delivery, "reason", graph.Reason)
		} else if err := pub.Publish(ctx, graph); err != nil {
			logger.Error("Failed to publish task graph.", "error", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}

		resp := webhookResponse{
			Delivery: delivery,
			TasksFor: string(tasksFor),
			TaskIDs:  graph.TaskIDs(),
			Skipped:  graph.Skipped,
		}
		if graph.Reason != nil {
			resp.Reason = graph.Reason.Error()
		}
		logger.Info("Webhook delivery accepted.", "delivery", resp.Delivery, "tasks", len(resp.TaskIDs))
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (a *App) runHandler(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, runstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// record keeps the outcome of a webhook delivery for later inspection.
func (a *App) record(ctx context.Context, id string, tasksFor event.Classification, graph *taskgraph.Graph, evalErr error) {
	run := &runstore.Run{ID: id, TasksFor: string(tasksFor), At: a.now(), Graph: graph}
	if evalErr != nil {
		run.Error = evalErr.Error()
		run.Kind = evalerr.KindName(evalErr)
	}
	if err := a.runs.Put(ctx, run); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record run.", "run", id, "error", err)
	}
}

func writeEvalError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	kind := evalerr.KindName(err)
	if kind == "internal" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
