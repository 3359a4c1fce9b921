package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/handlers"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/middleware"
	"site-mass-upload/internal/security"
)

// Server represents the HTTP server
type Server struct {
	config            *config.Config
	logger            *logger.Logger
	router            *mux.Router
	httpServer        *http.Server
	healthHandler     *handlers.HealthHandler
	massUploadHandler *handlers.MassUploadHandler
	securityHandler   *handlers.SecurityHandler
	authMiddleware    *middleware.AuthenticationMiddleware
	securityManager   *security.SecurityManager
	metricsRegistry   *prometheus.Registry
}

// NewServer creates a new HTTP server
func NewServer(
	config *config.Config,
	logger *logger.Logger,
	healthHandler *handlers.HealthHandler,
	massUploadHandler *handlers.MassUploadHandler,
	securityHandler *handlers.SecurityHandler,
	authMiddleware *middleware.AuthenticationMiddleware,
	securityManager *security.SecurityManager,
	metricsRegistry *prometheus.Registry,
) *Server {
	server := &Server{
		config:            config,
		logger:            logger,
		router:            mux.NewRouter(),
		healthHandler:     healthHandler,
		massUploadHandler: massUploadHandler,
		securityHandler:   securityHandler,
		authMiddleware:    authMiddleware,
		securityManager:   securityManager,
		metricsRegistry:   metricsRegistry,
	}

	server.setupRoutes()
	server.setupHTTPServer()

	return server
}

// Handler returns the fully wired router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoints (no auth required)
	s.router.HandleFunc("/health", s.healthHandler.HandleHealthCheck).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthHandler.HandleReadiness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", s.healthHandler.HandleLiveness).Methods(http.MethodGet)

	// Metrics endpoint (no auth required for monitoring systems)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.massUploadHandler.RegisterRoutes(s.router, s.authMiddleware)
	s.securityHandler.RegisterRoutes(s.router, s.authMiddleware)

	// Security middleware first (order matters)
	for _, mw := range s.securityManager.GetSecurityMiddleware() {
		s.router.Use(mw)
	}
	s.router.Use(middleware.NoStoreMiddleware)
	s.router.Use(middleware.CompressionMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// setupHTTPServer configures the HTTP server
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	// Start server - this will block until the server is shut down
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("HTTP server error")
		return err
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
