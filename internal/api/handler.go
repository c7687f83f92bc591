package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/pathflow/internal/config"
	"github.com/gyaneshwarpardhi/pathflow/internal/engine"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

const (
	maxEntryPoints = 1000
	// maxInFlight bounds concurrent analyses; each one runs its own worker pool.
	maxInFlight = 2
	// keptRuns is how many finished runs GET /v1/analyses/{id} can serve.
	keptRuns = 32
)

// AnalysisRequest is the body of POST /v1/analyses. An empty list analyzes
// every configured entry point.
type AnalysisRequest struct {
	EntryPoints []string `json:"entry_points"`
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      *engine.Engine
	loader   *config.Loader
	router   chi.Router
	inFlight atomic.Int32

	mu   sync.RWMutex
	runs map[string]*engine.RunResult
	// order holds run ids oldest first.
	order []string
}

// New creates an HTTP handler and registers all routes. loader may be nil, in
// which case config reload is unavailable. Reloaded configs are applied to eng.
func New(eng *engine.Engine, loader *config.Loader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		eng:    eng,
		loader: loader,
		router: chi.NewRouter(),
		runs:   make(map[string]*engine.RunResult),
	}
	if loader != nil {
		loader.OnChange(func(cfg *config.Config) {
			if err := eng.Reconfigure(cfg); err != nil {
				logger.Warn("reloaded config rejected, keeping previous", "path", loader.Path(), "err", err)
			}
		})
	}

	h.router.Use(middleware.RequestID)
	h.router.Use(loggingMiddleware(logger))
	h.router.Use(middleware.Recoverer)

	h.router.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", h.analyze)
		r.Get("/analyses/{id}", h.getAnalysis)
		r.Get("/rules", h.listRules)
		r.Post("/config/reload", h.reloadConfig)
	})
	h.router.Get("/healthz", h.healthz)
	h.router.Get("/readyz", h.readyz)
	h.router.Handle("/metrics", promhttp.Handler())

	return h.router
}

// POST /v1/analyses runs an analysis synchronously and returns its result.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(req.EntryPoints) > maxEntryPoints {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%d entry points exceed max %d", len(req.EntryPoints), maxEntryPoints))
		return
	}

	if h.inFlight.Add(1) > maxInFlight {
		h.inFlight.Add(-1)
		writeError(w, http.StatusTooManyRequests, "too many analyses in progress")
		return
	}
	defer h.inFlight.Add(-1)

	ctx := r.Context()
	var (
		entries []*graph.Vertex
		err     error
	)
	if len(req.EntryPoints) == 0 {
		entries, err = h.eng.Discover(ctx)
	} else {
		entries, err = h.eng.Lookup(ctx, req.EntryPoints)
	}
	if err != nil {
		writeFault(w, err)
		return
	}

	run, err := h.eng.Run(ctx, entries)
	if err != nil {
		writeFault(w, err)
		return
	}
	h.keep(run)
	writeJSON(w, http.StatusOK, run)
}

// GET /v1/analyses/{id} returns a recently finished run.
func (h *Handler) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mu.RLock()
	run, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("analysis %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) keep(run *engine.RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[run.RunID] = run
	h.order = append(h.order, run.RunID)
	if len(h.order) > keptRuns {
		delete(h.runs, h.order[0])
		h.order = h.order[1:]
	}
}

// GET /v1/rules lists registered rules with their configured state.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.eng.Config().Version,
		"rules":   h.eng.Rules(),
	})
}

// POST /v1/config/reload re-reads the config file and applies it.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "no config file to reload")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// The OnChange callback registered in New has run; a rejected config
	// leaves the previous one active.
	if h.eng.Config() != cfg {
		writeError(w, http.StatusUnprocessableEntity, "configuration rejected by engine, previous configuration still active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"version":  cfg.Version,
		"rules":    len(cfg.Rules),
	})
}

// GET /healthz always answers 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz answers 503 while every analysis slot is taken.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	n := h.inFlight.Load()
	if n >= maxInFlight {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "busy",
			"in_flight": n,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"in_flight": n,
	})
}
