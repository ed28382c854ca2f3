// Package server wires the health routes onto a chi router and runs the
// HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/handler"
	"github.com/sakif/ledgerbot/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Server is the health endpoint.
type Server struct {
	router *chi.Mux
	port   int
	logger zerolog.Logger
}

func New(port int, store handler.Pinger, logger zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		port:   port,
		logger: logger,
	}
	s.setupRoutes(store)
	return s
}

// setupRoutes registers the two health routes.
//
// GET  /       → liveness, always 200 while the process runs
// HEAD /       → same, for uptime pingers that only send HEAD
// GET  /ready  → readiness, 503 while the store is degraded
//
// MIDDLEWARE ORDER:
// chi runs middleware in the order it is added, outermost first.
//  1. RequestID  ← must come first so every later layer can log the id
//  2. RealIP     ← rewrites RemoteAddr before anything records it
//  3. Logger     ← sits outside Recoverer so it still sees the 500
//  4. Recoverer  ← innermost, closest to the handler that might panic
func (s *Server) setupRoutes(store handler.Pinger) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	health := handler.NewHealthHandler(store, 2*time.Second)
	s.router.Get("/", health.HandleLive)
	s.router.Head("/", health.HandleLive)
	s.router.Get("/ready", health.HandleReady)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.port).Msg("health endpoint starting")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info().Msg("health endpoint stopped")
	return nil
}
