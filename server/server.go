// Package server wires the router, middleware and HTTP server lifecycle of the EMR.
package server

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/giygas/mini-emr/config"
	"github.com/giygas/mini-emr/handlers"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/metrics"
	"github.com/giygas/mini-emr/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const rateLimiterSweep = 30 * time.Minute

// Server is the HTTP front of the EMR
type Server struct {
	server   *http.Server
	router   chi.Router
	handler  *handlers.Handler
	sessions *session.Manager
	limiter  *RateLimiter
	config   *config.Config

	stopSweep context.CancelFunc
}

// NewServer builds the router for handler
func NewServer(cfg *config.Config, handler *handlers.Handler, sessions *session.Manager) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.ListenAddr(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:   router,
		handler:  handler,
		sessions: sessions,
		limiter:  NewRateLimiter(),
		config:   cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(BlockDirectAccessMiddleware(s.config.RequireProxy)) // before RealIP so it sees the socket address
	s.router.Use(RealIPMiddleware(s.config.RequireProxy))
	s.router.Use(logging.RequestLogger(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
	s.router.Use(metrics.Metrics)
	s.router.Use(s.sessions.Middleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.handler.PageRoutes(s.router)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(middleware.Compress(5, "application/json"))
		s.handler.APIRoutes(r)
	})
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.limiter.Cleanup(ctx, rateLimiterSweep)

	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	logging.Info("Starting server", "addr", s.server.Addr, "env", s.config.Env.String())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires, then forces close
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	if s.stopSweep != nil {
		s.stopSweep()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer exposes pprof on localhost in development
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
