package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmercadier/amortization-extractor/internal/common"
)

// Server is the HTTP boundary for the upload UI: it accepts a PDF, runs the
// extraction pipeline, and returns the finished table as JSON or as a
// CSV/XLSX download. It never exposes partially-validated rows.
type Server struct {
	cfg      common.ServerConfig
	router   *chi.Mux
	handlers *Handlers
	http     *http.Server
	logger   *slog.Logger
}

func NewServer(cfg common.ServerConfig, handlers *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		handlers: handlers,
		logger:   logger,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Post("/extract", s.handlers.Extract)
	s.router.Post("/export", s.handlers.Export)
	s.router.Get("/jobs", s.handlers.ListJobs)
	s.router.Get("/healthz", s.handlers.Health)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	s.logger.Info("http.listening", "addr", s.cfg.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
