// Package server constructs the HTTP server that hosts the pipeline-routed
// API alongside health, readiness, and metrics endpoints.
//
// Purpose:
//
//	This package owns the chi router edge: request IDs, client IP resolution,
//	request/response logging, and the operational endpoints every deployment
//	expects. Application routes are registered by the caller through
//	Options.RegisterRoutes so the server stays route-agnostic.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: Router and edge middleware
//   - github.com/prometheus/client_golang: /metrics endpoint
//   - github.com/rs/zerolog: Request logging
//
// Debugging Notes:
//   - /readyz runs the injected readiness probe with a 2s ceiling
//   - Unmatched routes return the standard error envelope, not chi's default
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
)

// Options configure the HTTP server instance.
type Options struct {
	Port           int
	Logger         zerolog.Logger
	ServiceName    string
	Readiness      func(context.Context) error
	RegisterRoutes func(chi.Router)
}

// responseWriter wraps http.ResponseWriter to capture the status code for
// the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// New constructs an http.Server pre-configured with health, readiness, and
// metrics routes.
func New(opts Options) *http.Server {
	if opts.Readiness == nil {
		opts.Readiness = func(context.Context) error { return nil }
	}
	logger := opts.Logger.With().Str("component", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(accessLog(logger))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pipeline.WriteError(w, http.StatusNotFound, pipeline.CodeNotFound, "resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pipeline.WriteError(w, http.StatusMethodNotAllowed, pipeline.CodeNotFound, "method not allowed")
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pipeline.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := opts.Readiness(ctx); err != nil {
			logger.Warn().Err(err).Msg("readiness check failed")
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeInternal, "not ready")
			return
		}
		pipeline.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	if opts.RegisterRoutes != nil {
		opts.RegisterRoutes(router)
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// accessLog logs one line per completed request. Credential headers are
// reported as presence flags only.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Bool("has_api_key", r.Header.Get("X-API-Key") != "").
				Bool("has_auth", r.Header.Get("Authorization") != "").
				Msg("request completed")
		})
	}
}
