// Package web provides the HTTP API of the translation job service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/config"
	"github.com/JonMunkholm/catalogxlate/internal/core"
	mw "github.com/JonMunkholm/catalogxlate/internal/web/middleware"
)

// JobService is the part of core.Service the handlers use.
type JobService interface {
	ProcessPending(ctx context.Context, storeHash *string) (core.RunSummary, error)
	CreateExportJob(ctx context.Context, job core.NewJob) (core.TranslationJob, error)
	CreateImportJob(ctx context.Context, job core.NewJob, content []byte) (core.TranslationJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (core.TranslationJob, error)
	ListJobs(ctx context.Context, filter core.JobFilter) ([]core.TranslationJob, error)
	ListJobErrors(ctx context.Context, jobID uuid.UUID) ([]core.TranslationError, error)
	Limiter() *core.RunLimiter
}

// Options configures a Server.
type Options struct {
	Security       config.SecurityConfig
	Rate           config.RateLimitConfig
	RequestTimeout time.Duration
	MaxUploadSize  int64

	// Files serves stored files under /files/ when set.
	Files http.Handler

	// Ping reports database health for /healthz.
	Ping func(context.Context) error
}

// Server is the HTTP server.
type Server struct {
	jobs   JobService
	opts   Options
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance. ctx bounds background helpers
// such as the rate limiter's cleanup loop.
func NewServer(ctx context.Context, jobs JobService, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 20 << 20
	}
	s := &Server{
		jobs:   jobs,
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.setupMiddleware(ctx)
	s.setupRoutes(ctx)
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.opts.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.opts.Rate.Enabled {
		limiter := newRateLimiter(ctx, s.opts.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/healthz", s.handleHealth)

	if s.opts.Files != nil {
		s.router.Handle("/files/*", http.StripPrefix("/files/", s.opts.Files))
	}

	s.router.Route("/api/jobs", func(r chi.Router) {
		r.Use(mw.Authenticate(s.opts.Security.TriggerSecret, s.opts.Security.SessionSecret))

		// Trigger and upload share a tighter limit. The trigger runs a
		// whole pass synchronously, so it has no request timeout.
		r.Group(func(r chi.Router) {
			if s.opts.Rate.Enabled && s.opts.Rate.TriggerLimit > 0 {
				r.Use(newRateLimiter(ctx, s.opts.Rate.TriggerLimit, time.Minute).middleware)
			}
			r.Post("/process", s.handleProcess)
			r.With(middleware.Timeout(s.opts.RequestTimeout)).Post("/import", s.handleCreateImport)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))
			r.Get("/", s.handleListJobs)
			r.Post("/export", s.handleCreateExport)
			r.Get("/{jobID}", s.handleGetJob)
			r.Get("/{jobID}/errors", s.handleJobErrors)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status   string                `json:"status"`
	Database string                `json:"database"`
	Runs     core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", Runs: s.jobs.Limiter().Status()}
	status := http.StatusOK
	if s.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ping(ctx); err != nil {
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, r, status, resp)
}
