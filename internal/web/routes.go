package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tndang/rollcall/internal/web/handlers"
	"github.com/tndang/rollcall/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Deps, sessionManager *middleware.SessionManager, registry *prometheus.Registry) {
	authHandler := handlers.NewAuthHandler(deps.Users, sessionManager, s.logger)
	recognizeHandler := handlers.NewRecognizeHandler(deps.Recognition, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Recognition, deps.Attendance, s.logger)
	studentsHandler := handlers.NewStudentsHandler(deps.Students, deps.Embedder, deps.Roster, deps.Identify, s.logger)
	classesHandler := handlers.NewClassesHandler(deps.Classes, s.logger)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Method("GET", "/metrics", metricsHandler(registry))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// All other routes require authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionManager))

			// Classes
			r.Get("/classes", classesHandler.List)
			r.Post("/classes", classesHandler.Create)
			r.Get("/classes/{id}", classesHandler.Get)
			r.Delete("/classes/{id}", classesHandler.Delete)

			// Recognition and attendance
			r.Post("/classes/{id}/recognize", recognizeHandler.Recognize)
			r.Post("/classes/{id}/attendance", attendanceHandler.Mark)
			r.Get("/classes/{id}/attendance", attendanceHandler.List)
			r.Get("/classes/{id}/students", studentsHandler.ListByClass)

			// Students
			r.Post("/rosters/refresh", studentsHandler.RefreshRosters)
			r.Post("/students", studentsHandler.Create)
			r.Get("/students/search", studentsHandler.Search)
			r.Post("/students/identify", studentsHandler.Identify)
			r.Get("/students/{id}", studentsHandler.Get)
			r.Put("/students/{id}/face", studentsHandler.UpdateFace)
			r.Delete("/students/{id}", studentsHandler.Delete)
		})
	})
}
