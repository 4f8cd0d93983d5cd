// Package server builds the HTTP surface (§6) over an *app.App: the /v1
// job submission and read API, plus unprefixed health/ready/metrics
// endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/dreamforge/internal/app"
	"github.com/ternarybob/dreamforge/internal/handlers"
)

// Server owns the net/http server and its routed mux.
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New builds a Server wired against application's dependencies.
func New(application *app.App) *Server {
	s := &Server{app: application}
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE/NDJSON streams outlive any fixed write deadline
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.app

	jobs := handlers.NewJobsHandler(a.Repo, a.ObjectStore, a.Queue, a.Metrics, a.Config, a.Logger)
	logs := handlers.NewLogsHandler(a.Repo, a.Config, a.Logger)
	progress := handlers.NewProgressHandler(a.Repo, a.Config, a.Logger)
	modelsH := handlers.NewModelsHandler(a.Repo, a.Logger)
	health := handlers.NewHealthHandler(a.Repo, a.ObjectStore, a.Metrics, a.Config, a.Logger)

	mux.HandleFunc("POST /v1/jobs", jobs.Submit)
	mux.HandleFunc("GET /v1/jobs", jobs.List)
	mux.HandleFunc("GET /v1/jobs/{id}", jobs.Get)
	mux.HandleFunc("GET /v1/jobs/{id}/artifacts", jobs.Artifacts)
	mux.HandleFunc("GET /v1/jobs/{id}/logs", logs.Tail)
	mux.HandleFunc("GET /v1/jobs/{id}/progress", progress.Snapshot)
	mux.HandleFunc("GET /v1/jobs/{id}/progress/stream", progress.Stream)
	mux.HandleFunc("GET /v1/models", modelsH.List)
	mux.HandleFunc("GET /v1/models/{id}", modelsH.Get)

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", health.Metrics())

	return mux
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.app.Logger.Info().Str("address", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests (including open SSE
// streams) before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
