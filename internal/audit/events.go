// Package audit provides structured security-event emission for the pipeline.
//
// Purpose:
//
//	Every authorization-relevant outcome (logins, session expiries, org
//	isolation violations, role denials) is recorded as an audit event. Events
//	are emitted best-effort: emission failure never alters the authorization
//	decision that produced the event.
//
// Dependencies:
//   - github.com/google/uuid: Event and principal identifiers
//   - github.com/rs/zerolog: Structured logging for the logger emitter
//
// Key Responsibilities:
//   - Event struct defines the security-event schema
//   - Emitter interface abstracts Kafka vs logger implementations
//   - LoggerEmitter logs events as structured JSON
//   - KafkaEmitter (kafka.go) publishes to the audit topic
//
// Thread Safety:
//   - Emitter implementations must be safe for concurrent use
//
// Error Handling:
//   - Emit returns errors for monitoring; callers log and continue
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event represents one security event.
type Event struct {
	EventID    uuid.UUID      `json:"event_id"`
	OrgID      uuid.UUID      `json:"org_id,omitempty"`
	ActorID    uuid.UUID      `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type"` // "user", "service_account", "anonymous"
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"` // method + path
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Hash       string         `json:"hash"` // SHA256 of payload, for tamper detection
	CreatedAt  time.Time      `json:"created_at"`
}

// Emitter defines the interface for audit event emission.
type Emitter interface {
	// Emit sends an audit event. Returns an error for monitoring; callers
	// must treat emission as best-effort.
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter logs audit events as structured JSON.
type LoggerEmitter struct {
	logger zerolog.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger zerolog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With().Str("component", "audit").Logger()}
}

// Emit logs the audit event. Never fails.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	e.logger.Info().
		Str("event_id", event.EventID.String()).
		Str("org_id", event.OrgID.String()).
		Str("actor_id", event.ActorID.String()).
		Str("actor_type", event.ActorType).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Interface("metadata", event.Metadata).
		Msg("audit event")
	return nil
}

// NoopEmitter discards all events. Useful in tests.
type NoopEmitter struct{}

// NewNoopEmitter creates a no-op audit emitter.
func NewNoopEmitter() *NoopEmitter {
	return &NoopEmitter{}
}

// Emit discards the event.
func (e *NoopEmitter) Emit(ctx context.Context, event Event) error {
	return nil
}

// BuildEvent constructs an audit event with generated ID, hash, and timestamp.
func BuildEvent(orgID, actorID uuid.UUID, actorType, action string, metadata map[string]any) Event {
	event := Event{
		EventID:   uuid.New(),
		OrgID:     orgID,
		ActorID:   actorID,
		ActorType: actorType,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	event.Hash = computeEventHash(event)
	return event
}

// WithRequest enriches an event with HTTP request metadata.
func WithRequest(event Event, r *http.Request) Event {
	event.IPAddress = ClientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	if event.Resource == "" {
		event.Resource = r.Method + " " + r.URL.Path
	}
	return event
}

// ClientIP extracts the client IP: first X-Forwarded-For entry, else the
// socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	return r.RemoteAddr
}

// computeEventHash computes the SHA256 hash of the payload excluding the hash
// field itself.
func computeEventHash(event Event) string {
	event.Hash = ""
	payload, err := json.Marshal(event)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", event))
	}
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// Security-event action constants.
const (
	ActionLoginSuccess       = "auth.login"
	ActionLoginFailure       = "auth.login_failed"
	ActionLogout             = "auth.logout"
	ActionUserProvisioned    = "auth.user_provisioned"
	ActionSessionExpired     = "session.expired"
	ActionSessionRevoked     = "session.revoked"
	ActionSessionTrimmed     = "session.trimmed"
	ActionOrgMismatch        = "org.isolation_violation"
	ActionRoleDenied         = "role.denied"
	ActionCSRFRejected       = "csrf.rejected"
	ActionRateLimited        = "rate.limited"
)

// Actor type constants.
const (
	ActorTypeUser           = "user"
	ActorTypeServiceAccount = "service_account"
	ActorTypeAnonymous      = "anonymous"
)
