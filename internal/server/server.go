// Package server exposes the question-answering runtime over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"safetyqa/internal/config"
	"safetyqa/internal/domain"
	"safetyqa/internal/service"
)

// Backend is what the handlers need from the runtime.
type Backend interface {
	domain.Asker
	Stats() service.Stats
}

// Server manages the HTTP server and routes.
type Server struct {
	backend Backend
	cfg     config.ServerConfig
	logger  arbor.ILogger
	router  *http.ServeMux
	server  *http.Server
}

// New creates a server for backend. Nothing listens until Start.
func New(backend Backend, cfg config.ServerConfig, logger arbor.ILogger) *Server {
	s := &Server{backend: backend, cfg: cfg, logger: logger}
	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.addr()).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}
