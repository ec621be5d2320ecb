// Package api provides the HTTP server for the Life System.
// It exposes the adventurer, coach and admin REST endpoints over chi.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/health"
	"github.com/sololeveling/lifesystem/internal/infra/scheduler"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// CatalogReloader re-seeds the template catalog and returns its size.
type CatalogReloader func(ctx context.Context) (int, error)

// JobLister exposes scheduler state to the admin health endpoint.
type JobLister interface {
	Status() []scheduler.JobStatus
}

// Server is the Life System HTTP API server.
type Server struct {
	eng            *engagement.Engine
	log            *zap.Logger
	metricsEnabled bool
	corsOrigins    []string
	health         *health.Checker
	jobs           JobLister
	reload         CatalogReloader
}

// NewServer creates a new API server. A nil logger disables request logs.
func NewServer(eng *engagement.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{eng: eng, log: log.Named("api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCORSOrigins restricts CORS to the given origins. Empty allows any.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// SetHealth sets the checker behind /api/admin/health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetScheduler exposes scheduler jobs on /api/admin/health.
func (s *Server) SetScheduler(j JobLister) { s.jobs = j }

// SetCatalogReloader sets the action behind /api/admin/catalog/reload.
func (s *Server) SetCatalogReloader(fn CatalogReloader) { s.reload = fn }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/progress", s.handleProgress)
			r.Put("/category", s.handleSetCategory)
			r.Get("/quests", s.handleListQuests)
			r.Post("/quests/generate", s.handleGenerate)
			r.Post("/quests/{questID}/complete", s.handleComplete)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/checkins", s.handleCheckins)
			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{id}/read", s.handleNotificationRead)
		})

		r.Post("/coaches/{coachID}/feedback", s.handleFeedback)
		r.Get("/templates", s.handleTemplates)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireRole(domain.RoleAdmin))
			r.Get("/users", s.handleAdminUsers)
			r.Post("/sweeps/{kind}", s.handleSweep)
			r.Post("/catalog/reload", s.handleCatalogReload)
			r.Get("/health", s.handleAdminHealth)
		})
	})

	return r
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeDomainError maps an engine error onto an HTTP status. Persistence
// failures are reported as retryable without leaking the driver error.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	default:
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{
				"message":   "temporary failure, please retry",
				"type":      "unavailable",
				"retryable": true,
			},
		})
		return
	}
	writeError(w, status, err.Error())
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// corsMiddleware adds CORS headers. With no configured origins any origin
// is allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.corsOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole admits requests whose X-User-ID header names a user holding
// one of roles.
func (s *Server) requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if id == "" {
				writeError(w, http.StatusForbidden, "X-User-ID header is required")
				return
			}
			if _, err := s.eng.Users.Require(r.Context(), id, roles...); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					err = domain.ErrForbidden
				}
				s.writeDomainError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
