package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/config"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/roster"
	"github.com/tndang/rollcall/internal/web/handlers"
	"github.com/tndang/rollcall/internal/web/middleware"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Students    database.StudentStore
	Attendance  database.AttendanceStore
	Classes     database.ClassStore
	Users       database.UserStore
	Recognition handlers.Recognizer
	Embedder    embedder.Embedder
	Roster      *roster.Index
	Identify    *database.IdentifyIndex
	Logger      *zap.Logger
}

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	logger         *zap.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret)

	s := &Server{
		config:         cfg,
		router:         r,
		sessionManager: sessionManager,
		logger:         logger,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewHTTPMetrics(registry)

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))
	r.Use(middleware.CORS())
	r.Use(httpMetrics.Handler())

	s.setupRoutes(deps, sessionManager, registry)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute, // Long enough for group photo uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
