// Package pipeline implements the request-level security pipeline: credential
// resolution, session lifecycle, CSRF protection, org isolation, role checks,
// rate limiting, and the preset compositions endpoint authors use.
//
// Purpose:
//
//	Every route in the service is registered through one of the presets in
//	presets.go. A preset is a fixed, vetted ordering of stages evaluated by a
//	single composition function, so endpoint authors cannot omit a required
//	layer and ordering is reviewable as data rather than nested closures.
//
// Dependencies:
//   - github.com/google/uuid: Principal and org identifiers
//   - github.com/rs/zerolog: Structured logging
//   - internal/storage: Persistence contract (sessions, users, memberships)
//   - internal/limiter: Request-quota enforcement
//   - internal/audit: Security event emission
//
// Key Responsibilities:
//   - Ctx carries per-request security state between stages
//   - Stages decide continue-or-reject; the composer evaluates them in order
//   - Handlers read the resolved state via FromContext and helpers
//
// Thread Safety:
//   - A Ctx belongs to a single request and is never shared
//
// Error Handling:
//   - Stages reject with typed Rejections; the outermost wrapper converts
//     panics and rejections into the stable error envelope
package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// PrincipalType distinguishes human users from internal services.
type PrincipalType string

const (
	PrincipalHuman   PrincipalType = "user"
	PrincipalService PrincipalType = "service_account"
)

// Principal is the authenticated identity attached to a request. Exactly one
// principal attaches per authenticated request.
type Principal struct {
	Type        PrincipalType
	ID          uuid.UUID
	Email       string
	DisplayName string
	// Identity is the synthetic identity string, e.g. "service:billing-sync"
	// for machine principals or the user email for humans.
	Identity string
	// Memberships is the human principal's org membership list. Empty for
	// service principals.
	Memberships []storage.Membership
	// Service holds the raw descriptor for machine principals. Nil for humans.
	Service *storage.ServiceAccount
	// SessionTokenHash identifies the backing session for human principals.
	SessionTokenHash string
}

// IsService reports whether the principal is an internal service.
func (p *Principal) IsService() bool {
	return p != nil && p.Type == PrincipalService
}

// RoleIn returns the principal's role in the given org and whether a
// membership exists. Service principals act with admin authority inside
// their bound org only.
func (p *Principal) RoleIn(orgID uuid.UUID) (string, bool) {
	if p == nil {
		return "", false
	}
	if p.IsService() {
		if p.Service != nil && p.Service.OrgID == orgID {
			return storage.RoleAdmin, true
		}
		return "", false
	}
	for _, m := range p.Memberships {
		if m.OrgID == orgID {
			return m.Role, true
		}
	}
	return "", false
}

// HasRoleAnywhere reports whether any membership carries the given role,
// compared case-insensitively.
func (p *Principal) HasRoleAnywhere(role string) bool {
	if p == nil {
		return false
	}
	for _, m := range p.Memberships {
		if strings.EqualFold(m.Role, role) {
			return true
		}
	}
	return false
}

// Ctx is the per-request security context threaded through the stages. Each
// stage reads the fields earlier stages populated and fills in its own before
// the handler runs.
type Ctx struct {
	W http.ResponseWriter
	R *http.Request

	// Principal is set by the credential stage; nil until then and on public
	// presets.
	Principal *Principal
	// ActiveOrg is the org context selected for this request. uuid.Nil means
	// unset.
	ActiveOrg uuid.UUID
	// ResolvedOrg is the org owning the targeted resource, set by the org
	// guard after running the endpoint's resolver.
	ResolvedOrg uuid.UUID
	// Input is the validated request body when the preset configured a schema.
	Input any

	preset string
}

// ctxKey is the context key under which the pipeline Ctx is attached for the
// inner handler.
type ctxKey struct{}

// uuidNil avoids importing uuid in every file just for the zero check.
var uuidNil = uuid.Nil

func withCtx(ctx context.Context, rc *Ctx) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the pipeline Ctx for the request, or nil when the
// handler was not registered through a preset.
func FromContext(ctx context.Context) *Ctx {
	rc, _ := ctx.Value(ctxKey{}).(*Ctx)
	return rc
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	if rc := FromContext(ctx); rc != nil {
		return rc.Principal
	}
	return nil
}

// GetActiveOrg returns the active org for the request, or uuid.Nil.
func GetActiveOrg(ctx context.Context) uuid.UUID {
	if rc := FromContext(ctx); rc != nil {
		return rc.ActiveOrg
	}
	return uuid.Nil
}

// GetInput returns the validated request body, or nil.
func GetInput(ctx context.Context) any {
	if rc := FromContext(ctx); rc != nil {
		return rc.Input
	}
	return nil
}

// ClientIP extracts the rate-limit client key: first X-Forwarded-For entry,
// else the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	return r.RemoteAddr
}
