package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/config"
	"propsift/internal/executor"
	"propsift/internal/logging"
	"propsift/internal/registry"
	"propsift/internal/store"
)

// Server represents the HTTP API server
type Server struct {
	router *http.ServeMux
	server *http.Server
	addr   string
	logger *logging.Logger

	catalog     *registry.Catalog
	compiler    *compiler.Compiler
	executor    *executor.Executor
	widgets     *cache.WidgetCache
	invalidator *cache.Invalidator
	db          *store.DB
	limiter     *limiter
}

// Deps bundles the wired components the server serves.
type Deps struct {
	Catalog     *registry.Catalog
	Compiler    *compiler.Compiler
	Executor    *executor.Executor
	Widgets     *cache.WidgetCache
	Invalidator *cache.Invalidator
	DB          *store.DB
}

// NewServer creates a new HTTP server instance
func NewServer(cfg config.APIConfig, deps Deps, logger *logging.Logger) *Server {
	s := &Server{
		addr:        cfg.Addr,
		logger:      logger.WithComponent("api"),
		catalog:     deps.Catalog,
		compiler:    deps.Compiler,
		executor:    deps.Executor,
		widgets:     deps.Widgets,
		invalidator: deps.Invalidator,
		db:          deps.DB,
		limiter:     newLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RetryAfterSeconds),
		router:      http.NewServeMux(),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = RateLimitMiddleware(s.limiter, s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
