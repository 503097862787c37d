/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /health               Liveness + database ping
  /api/cycle            Cycle calculator
  /api/cards/*          Card catalog
  /api/users/*          Users and their tracked benefits
  /api/user-benefits/*  Completion, usage, settings
  /api/admin/*          Manual job triggers, job logs, reset (token protected)

SECURITY:
  Admin routes require the configured admin token, sent as X-Admin-Token
  or "Authorization: Bearer <token>". With no token configured they are
  open, which config.Validate refuses in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	AdminToken     string

	// AllowReset exposes POST /api/admin/reset. Development only.
	AllowReset bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/cycle", h.GetCycle)
		r.Get("/cycle/deadline", h.GetDeadline)

		// Card routes
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.CreateCard)
			r.Get("/{id}", h.GetCard)
			r.Post("/{id}/benefits", h.CreateBenefit)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Post("/{id}/cards", h.AddUserCard)
			r.Get("/{id}/benefits", h.ListUserBenefits)
			r.Get("/{id}/history", h.ListHistory)
		})

		// Tracking routes
		r.Route("/user-benefits", func(r chi.Router) {
			r.Post("/{id}/complete", h.CompleteUserBenefit)
			r.Post("/{id}/usages", h.RecordUsage)
			r.Put("/{id}/settings", h.UpdateSettings)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdminToken(opts.AdminToken))
			r.Post("/manual/check-expiring-benefits", h.TriggerExpirationCheck)
			r.Post("/manual/archive-expired-benefits", h.TriggerArchive)
			r.Get("/cron-logs", h.ListJobLogs)
			if opts.AllowReset {
				r.Post("/reset", h.ResetDatabase)
			}
		})
	})

	return r
}

// requireAdminToken rejects requests that don't carry token. An empty
// token disables the check.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
