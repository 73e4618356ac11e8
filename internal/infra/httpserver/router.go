package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appruns "github.com/bryanwahyu/scanpipe/internal/application/runs"
	domain "github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/middleware"
)

type Options struct {
	APIKeys     map[string]string
	CORSOrigins []string
	RateLimiter *middleware.RateLimiter // nil disables rate limiting of triggers
	Metrics     *middleware.Metrics
	Checkers    map[string]middleware.HealthChecker
}

type Router struct {
	runsSvc *appruns.Service
}

func NewRouter(runsSvc *appruns.Service, opts Options) http.Handler {
	r := &Router{runsSvc: runsSvc}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(opts.Metrics.Middleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(opts.Checkers))
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		rt.Group(func(g chi.Router) {
			if opts.RateLimiter != nil {
				g.Use(opts.RateLimiter.Middleware)
			}
			g.Post("/runs", r.wrap(r.handleTrigger))
		})
		rt.Get("/runs/latest", r.wrap(r.handleLatest))
		rt.Get("/runs/current", r.wrap(r.handleCurrent))
		rt.Get("/runs/{id}", r.wrap(r.handleGet))
		rt.Get("/runs/{id}/errors", r.wrap(r.handleErrors))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrRunInProgress):
				http.Error(w, err.Error(), http.StatusConflict)
			case middleware.IsValidation(err):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				log.Printf("http error method=%s path=%s: %v", req.Method, req.URL.Path, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/runs
// Body: {"source": "...", "commit_sha": "...", "branch": "..."}
func (r *Router) handleTrigger(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Source    string `json:"source"`
		CommitSHA string `json:"commit_sha"`
		Branch    string `json:"branch"`
	}
	// body boleh kosong
	if req.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			return &middleware.ValidationError{Field: "body", Reason: err.Error()}
		}
	}
	body.Source = middleware.SanitizeString(body.Source)
	body.CommitSHA = middleware.SanitizeString(body.CommitSHA)
	body.Branch = middleware.SanitizeString(body.Branch)
	for _, err := range []error{
		middleware.ValidateSource(body.Source),
		middleware.ValidateCommitSHA(body.CommitSHA),
		middleware.ValidateBranch(body.Branch),
	} {
		if err != nil {
			return err
		}
	}

	triggeredBy := middleware.ClientFromContext(req.Context())
	if triggeredBy == "" {
		triggeredBy = "api"
	}
	run, err := r.runsSvc.Trigger(appruns.Request{
		Source:      body.Source,
		CommitSHA:   body.CommitSHA,
		Branch:      body.Branch,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		return err
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/runs/%s", run.ID))
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"id":       run.ID,
		"status":   run.Status,
		"branch":   run.Branch,
		"commit":   run.CommitSHA,
		"message":  "run started in background",
		"queuedAt": run.TriggeredAt.Format(time.RFC3339),
	})
}

// GET /v1/runs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.runsSvc.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Run{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/runs/current
func (r *Router) handleCurrent(w http.ResponseWriter, req *http.Request) error {
	id, ok := r.runsSvc.Current()
	if !ok {
		return sql.ErrNoRows
	}
	return writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": domain.StatusRunning})
}

// GET /v1/runs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	run, err := r.runsSvc.Get(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// GET /v1/runs/{id}/errors?limit=20
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	// 404 kalau run tidak ada
	if _, err := r.runsSvc.Get(req.Context(), domain.RunID(id)); err != nil {
		return err
	}
	list, err := r.runsSvc.StageErrors(req.Context(), domain.RunID(id), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}
