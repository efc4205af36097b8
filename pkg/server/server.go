// Package server accepts GitHub webhook deliveries and exposes run history over HTTP.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/greboid/actrun/pkg/history"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/workflow"
)

const maxPayloadSize = 25 << 20

// Dispatcher starts a run of wf for event and returns its id without waiting for it.
type Dispatcher interface {
	Dispatch(wf *workflow.Workflow, event trigger.Event) (string, error)
}

type RunStore interface {
	List() ([]*runner.RunResult, error)
	Get(id string) (*runner.RunResult, error)
}

// WorkflowSource returns the workflows to match deliveries against. It is called for every
// delivery so edits are picked up without a restart.
type WorkflowSource func() ([]*workflow.Workflow, error)

type Options struct {
	// Secret verifies X-Hub-Signature-256; empty disables verification.
	Secret     string
	Workflows  WorkflowSource
	Dispatcher Dispatcher
	Runs       RunStore
}

type Server struct {
	opts Options
}

func New(opts Options) *Server {
	return &Server{opts: opts}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook", s.handleWebhook)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("Listening for webhooks", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}

type dispatched struct {
	Workflow string `json:"workflow"`
	RunID    string `json:"run_id"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("X-GitHub-Event")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing X-GitHub-Event header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if s.opts.Secret != "" && !validSignature(s.opts.Secret, body, r.Header.Get("X-Hub-Signature-256")) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	delivery := r.Header.Get("X-GitHub-Delivery")
	switch name {
	case "ping":
		writeJSON(w, http.StatusOK, map[string]string{"msg": "pong"})
		return
	case workflow.EventPush, workflow.EventPullRequest:
	default:
		slog.Debug("Ignoring webhook event", "event", name, "delivery", delivery)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	event, err := trigger.ParsePayload(name, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflows, err := s.opts.Workflows()
	if err != nil {
		slog.Error("Failed to load workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot load workflows")
		return
	}

	var runs []dispatched
	for _, wf := range workflows {
		if !trigger.Evaluate(wf, event) {
			continue
		}
		id, err := s.opts.Dispatcher.Dispatch(wf, event)
		if err != nil {
			slog.Error("Failed to dispatch run", "workflow", wf.DisplayName(), "event", event.String(), "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("dispatching %s: %v", wf.DisplayName(), err))
			return
		}
		slog.Info("Dispatched run", "workflow", wf.DisplayName(), "event", event.String(), "run_id", id, "delivery", delivery)
		runs = append(runs, dispatched{Workflow: wf.DisplayName(), RunID: id})
	}

	if len(runs) == 0 {
		slog.Info("No workflow triggered", "event", event.String(), "delivery", delivery)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"runs": runs})
}

// validSignature checks a GitHub "sha256=<hex>" HMAC of body.
func validSignature(secret string, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type runSummary struct {
	ID         string            `json:"id"`
	Workflow   string            `json:"workflow"`
	Event      string            `json:"event"`
	Conclusion runner.Conclusion `json:"conclusion"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
	Jobs       int               `json:"jobs"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.opts.Runs.List()
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot list runs")
		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			ID:         run.ID,
			Workflow:   run.Workflow,
			Event:      run.Event.String(),
			Conclusion: run.Conclusion,
			Started:    run.Started,
			Finished:   run.Finished,
			Jobs:       len(run.Jobs),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.opts.Runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		slog.Error("Failed to read run", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot read run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
