// Package bootstrap provides centralized initialization and lifecycle
// management for the service's runtime dependencies.
//
// Purpose:
//
//	This package wires together Postgres, optional Redis, the rate limiter,
//	the audit emitter, and the lockout tracker in a fixed order, and exposes a
//	unified shutdown and readiness interface for the binary.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: Rate-limit counters and lockout tracking
//   - github.com/segmentio/kafka-go (via internal/audit): Audit event publishing
//   - internal/storage/postgres: Core data access layer
//
// Key Responsibilities:
//   - Initialize connects dependencies and composes the pipeline Deps bundle
//   - ReadinessProbe checks Postgres and Redis health for /readyz
//   - Close releases resources in reverse initialization order
//
// Debugging Notes:
//   - Postgres failures prevent startup (required dependency)
//   - Redis failures fail fast during init (2s ping); without Redis the
//     in-memory limiter is used and lockout tracking is disabled
//   - Without Kafka brokers, audit events go to the logger emitter
//
// Error Handling:
//   - Initialization errors are wrapped with the dependency name
//   - Close collects errors but returns the first one encountered
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/config"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/logging"
	"github.com/otherjamesbrown/caseflow-api/internal/security"
	"github.com/otherjamesbrown/caseflow-api/internal/storage/postgres"
)

// Runtime bundles initialized dependencies for the service binary. All fields
// are populated during Initialize and remain valid until Close.
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Postgres *postgres.Store
	Redis    *redis.Client
	Limiter  limiter.Limiter
	Audit    audit.Emitter
	Lockout  *security.LockoutTracker
	Deps     pipeline.Deps
}

// Initialize wires core dependencies. Order: Postgres, Redis (if configured),
// audit emitter, limiter, lockout tracker, pipeline deps. The returned
// Runtime must be closed via Close during shutdown.
func Initialize(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.Environment)

	pgStore, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Postgres: pgStore,
	}

	if cfg.RedisAddr != "" {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rt.Redis.Ping(pingCtx).Err(); err != nil {
			pgStore.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
	}

	kafkaEmitter, err := audit.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaClientID, logger)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("kafka emitter unavailable, falling back to logger")
		rt.Audit = audit.NewLoggerEmitter(logger)
	case kafkaEmitter != nil:
		logger.Info().Str("topic", cfg.KafkaTopic).Msg("publishing audit events to kafka")
		rt.Audit = kafkaEmitter
	default:
		logger.Info().Msg("kafka not configured, logging audit events")
		rt.Audit = audit.NewLoggerEmitter(logger)
	}

	if rt.Redis != nil {
		rt.Limiter = limiter.NewRedisLimiter(rt.Redis, cfg.ServiceName)
		rt.Lockout = security.NewLockoutTracker(rt.Redis, security.LockoutConfig{
			MaxAttempts:     cfg.LockoutMaxAttempts,
			LockoutDuration: cfg.LockoutDuration,
			WindowDuration:  cfg.LockoutWindow,
		})
	} else {
		logger.Warn().Msg("redis not configured, using in-memory rate limiter")
		rt.Limiter = limiter.NewMemoryLimiter(nil)
		rt.Lockout = security.NewLockoutTracker(nil, security.LockoutConfig{})
	}

	rt.Deps = pipeline.NewDeps(pgStore, rt.Limiter, rt.Audit, logger, cfg)
	return rt, nil
}

// Close releases runtime resources in reverse initialization order. Returns
// the first error encountered but continues closing the rest.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var firstErr error
	if closer, ok := rt.Audit.(*audit.KafkaEmitter); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	return firstErr
}

// ReadinessProbe checks the health of critical dependencies. Used by /readyz.
func (rt *Runtime) ReadinessProbe(ctx context.Context) error {
	if rt.Postgres != nil {
		if err := rt.Postgres.Pool().Ping(ctx); err != nil {
			return fmt.Errorf("postgres not ready: %w", err)
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}
