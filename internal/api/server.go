package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Server hosts the HTTP surface.
type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer builds the router over the given dependencies.
func NewServer(cfg *config.Config, deps Deps) *Server {
	h := NewHandlers(cfg, deps)
	return &Server{cfg: cfg, router: Routes(cfg, h)}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Must outlast the 60s request timeout middleware.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler { return s.router }
