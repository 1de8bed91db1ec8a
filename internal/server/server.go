// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/accountdesk/internal/activity"
	"github.com/matthewbaird/accountdesk/internal/handler"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/metrics"
	"github.com/matthewbaird/accountdesk/internal/wire"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration.
type Config struct {
	Port     int
	Desk     handler.Desk
	Activity activity.Store
	Metrics  *metrics.Registry
	Logger   *logger.Logger

	// AllowedOrigins are extra browser origins the console accepts.
	AllowedOrigins []string
}

// NewRouter registers every route behind the logging and recovery
// middleware.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recovery(log))
	r.Use(Logging(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// Chat console
	r.Method(http.MethodGet, "/ws", wire.NewHandler(cfg.Desk, log, cfg.AllowedOrigins...))

	handler.NewAccountHandler(cfg.Desk, log).Routes(r)
	if cfg.Activity != nil {
		handler.NewActivityHandler(cfg.Activity, cfg.Desk, log).Routes(r)
	}
	return r
}

// Run listens on cfg.Port and serves until ctx is cancelled, then drains
// in-flight requests.
func Run(ctx context.Context, cfg Config) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, cfg)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, ln net.Listener, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	srv := &http.Server{
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}
