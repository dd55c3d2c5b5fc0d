// Package api exposes runs, sessions and scored jobs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jobhound/internal/models"
	"jobhound/internal/scraper"
	"jobhound/internal/storage"
)

const maxRunBodySize = 1 << 20

// RunManager is the run control surface the API needs.
type RunManager interface {
	StartRun(ctx context.Context, criteria models.SearchCriteria, profile models.UserProfile) (string, error)
	Status(ctx context.Context, id string) (scraper.StatusReport, error)
	Cancel(ctx context.Context, id string) error
}

// Deps are the collaborators of the HTTP handler. Criteria and Profile are
// the configured defaults used when a run request omits them.
type Deps struct {
	Runs     RunManager
	Store    storage.Store
	Criteria models.SearchCriteria
	Profile  models.UserProfile
	Logger   *slog.Logger
}

// RunRequest optionally overrides the configured search for one run.
type RunRequest struct {
	Criteria *models.SearchCriteria `json:"criteria,omitempty"`
	Profile  *models.UserProfile    `json:"profile,omitempty"`
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", handleStartRun(deps))
		r.Get("/runs/{id}", handleRunStatus(deps))
		r.Post("/runs/{id}/cancel", handleCancelRun(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/stats", handleStats(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleStartRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRunBodySize)
		defer r.Body.Close()

		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		criteria, profile := deps.Criteria, deps.Profile
		if req.Criteria != nil {
			criteria = *req.Criteria
		}
		if req.Profile != nil {
			profile = *req.Profile
		}

		id, err := deps.Runs.StartRun(r.Context(), criteria, profile)
		var cfgErr *models.ConfigError
		switch {
		case errors.As(err, &cfgErr):
			httpError(w, http.StatusBadRequest, "config_error", "%s", cfgErr.Error())
			return
		case errors.Is(err, models.ErrRunInProgress):
			httpError(w, http.StatusConflict, "conflict", "%s", err.Error())
			return
		case err != nil:
			deps.Logger.Error("starting run failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "starting run failed")
			return
		}

		w.Header().Set("Location", "/api/runs/"+id)
		writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
	}
}

func handleRunStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Runs.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			sessionError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleCancelRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Runs.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			sessionError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := storage.JobQuery{
			Source:   q.Get("source"),
			Location: q.Get("location"),
			Sort:     q.Get("sort"),
		}
		var err error
		if query.MinScore, err = floatParam(q.Get("min_score")); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid min_score: %v", err)
			return
		}
		if query.Page, err = intParam(q.Get("page")); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid page: %v", err)
			return
		}
		if query.PerPage, err = intParam(q.Get("per_page")); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid per_page: %v", err)
			return
		}
		if query.Sort != "" && query.Sort != storage.SortByScore && query.Sort != storage.SortByDate {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sort must be %q or %q", storage.SortByScore, storage.SortByDate)
			return
		}

		page, err := deps.Store.QueryJobs(r.Context(), query)
		if err != nil {
			deps.Logger.Error("querying jobs failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "querying jobs failed")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := intParam(r.URL.Query().Get("limit"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %v", err)
			return
		}
		sessions, err := deps.Store.ListSessions(r.Context(), limit)
		if err != nil {
			deps.Logger.Error("listing sessions failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions failed")
			return
		}
		if sessions == nil {
			sessions = []models.ScrapingSession{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats(r.Context())
		if err != nil {
			deps.Logger.Error("computing job stats failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "computing job stats failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func sessionError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, models.ErrSessionNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	logger.Error("session lookup failed", "error", err)
	httpError(w, http.StatusInternalServerError, "api_error", "session lookup failed")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err == nil && n < 0 {
		err = fmt.Errorf("must not be negative")
	}
	return n, err
}

func floatParam(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
