// Package metrics provides Prometheus collectors for the security pipeline.
//
// Purpose:
//
//	This package defines and exports Prometheus metrics for authentication,
//	guard decisions, and rate limiting. Metrics are registered globally and
//	exposed via the /metrics endpoint.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Usage:
//
//	Metrics register on import. Use the exported helpers to record values:
//	  metrics.RecordAuthResult("session", "success")
//	  metrics.RecordGuardDenial("org_mismatch")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caseflow_api"

var (
	// AuthResultsTotal counts credential resolution outcomes by method and result.
	AuthResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "results_total",
			Help:      "Credential resolution outcomes by method and result",
		},
		[]string{"method", "result"}, // method: session, api_key, client_credentials; result: success, failure
	)

	// GuardDenialsTotal counts pipeline rejections by reason.
	GuardDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "denials_total",
			Help:      "Pipeline rejections by reason",
		},
		[]string{"reason"}, // unauthenticated, org_mismatch, org_not_found, role_denied, csrf, no_active_org, session_timeout
	)

	// RateLimitedTotal counts rate-limit rejections by category.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Rate-limit rejections by category",
		},
		[]string{"category"},
	)

	// RequestDuration observes end-to-end pipeline latency by preset.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency by preset",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"preset"},
	)
)

// RecordAuthResult records a credential resolution outcome.
func RecordAuthResult(method, result string) {
	AuthResultsTotal.WithLabelValues(method, result).Inc()
}

// RecordGuardDenial records a pipeline rejection.
func RecordGuardDenial(reason string) {
	GuardDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimited records a rate-limit rejection.
func RecordRateLimited(category string) {
	RateLimitedTotal.WithLabelValues(category).Inc()
}
