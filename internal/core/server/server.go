// Package server wires the HTTP surface: collections, health probes and middleware.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/spatial-entities/internal/core/config"
	"github.com/mohammed-shakir/spatial-entities/internal/core/health"
	middleware "github.com/mohammed-shakir/spatial-entities/internal/core/middleware"
	"github.com/mohammed-shakir/spatial-entities/internal/core/router"
)

// Handler builds the routed handler without starting a listener.
func Handler(logger *slog.Logger, cols []router.Collection, checks ...health.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(checks...))
	router.Mount(r, logger, cols...)
	return r
}

// Run serves until ctx is done, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, cols []router.Collection, checks ...health.Check) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(logger, cols, checks...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
