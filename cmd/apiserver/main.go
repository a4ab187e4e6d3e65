// Command apiserver is the caseflow API server.
//
// Purpose:
//
//	This binary initializes core dependencies (Postgres, Redis, Kafka) via
//	bootstrap, registers the authentication and drafting routes through the
//	security presets, and serves HTTP requests with graceful shutdown.
//
// Dependencies:
//   - internal/bootstrap: Runtime initialization and lifecycle management
//   - internal/httpapi/auth: Login/logout and session management endpoints
//   - internal/httpapi/projects: Org-scoped drafting routes
//   - internal/server: HTTP server with health/readiness/metrics endpoints
//
// Debugging Notes:
//   - Server starts on HTTP_PORT (default 8080)
//   - Readiness probe checks Postgres and Redis connectivity
//   - Graceful shutdown allows in-flight requests to complete (10s timeout)
//
// Error Handling:
//   - Configuration and bootstrap failures log fatal and exit
//   - Shutdown errors are logged; runtime close errors don't abort shutdown
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/otherjamesbrown/caseflow-api/internal/bootstrap"
	"github.com/otherjamesbrown/caseflow-api/internal/config"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/auth"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/projects"
	"github.com/otherjamesbrown/caseflow-api/internal/server"
)

func main() {
	cfg := config.MustLoad()

	ctx := context.Background()
	runtime, err := bootstrap.Initialize(ctx, cfg)
	if err != nil {
		// Logger lives on the runtime, which failed to build.
		os.Stderr.WriteString("failed to bootstrap runtime: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := runtime.Logger
	logger.Info().
		Str("env", cfg.Environment).
		Int("port", cfg.HTTPPort).
		Msg("starting caseflow API")

	authHandlers := &auth.Handlers{Deps: runtime.Deps, Lockout: runtime.Lockout}
	projectHandlers := &projects.Handlers{Deps: runtime.Deps}

	srv := server.New(server.Options{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
		Readiness:   runtime.ReadinessProbe,
		RegisterRoutes: func(r chi.Router) {
			r.Route("/v1", func(r chi.Router) {
				authHandlers.Routes(r)
				projectHandlers.Routes(r)
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	if err := runtime.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to cleanly close runtime")
	}

	logger.Info().Msg("caseflow API stopped")
}
