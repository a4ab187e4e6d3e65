package pipeline

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
)

// OrgResolver maps a request to the org that owns the targeted resource. The
// bool is false when the resource does not exist or has no owning org; the
// guard converts that into a 404 so callers cannot distinguish "missing" from
// "not yours". Resolvers must not leak resource existence through errors.
type OrgResolver func(r *http.Request) (uuid.UUID, bool, error)

// guardMode selects how the org guard compares resolved against allowed orgs.
type guardMode int

const (
	// guardEquality requires the resolved org to equal the request's active org.
	guardEquality guardMode = iota
	// guardMembership accepts any org the principal is a member of. Used by
	// browser-accessible routes where no org hint header is sent.
	guardMembership
)

// selectActiveOrg pins the request's org context. Service principals are
// always bound to their account's org; the org hint header is ignored for
// them. Humans select among their memberships via the hint header, falling
// back to the first membership when the hint is absent or not theirs.
func (d Deps) selectActiveOrg() Stage {
	return Stage{
		Name: "select-active-org",
		Run: func(rc *Ctx) *Rejection {
			p := rc.Principal
			if p == nil {
				return nil
			}
			if p.IsService() {
				rc.ActiveOrg = p.Service.OrgID
				return nil
			}

			if hint := rc.R.Header.Get(d.Config.OrgHeaderName); hint != "" {
				if orgID, err := uuid.Parse(hint); err == nil {
					if _, member := p.RoleIn(orgID); member {
						rc.ActiveOrg = orgID
						return nil
					}
				}
			}
			if len(p.Memberships) > 0 {
				rc.ActiveOrg = p.Memberships[0].OrgID
			}
			return nil
		},
	}
}

// orgGuard runs the endpoint's resolver and enforces org isolation. A missing
// resource and a foreign resource produce different statuses on purpose: 404
// hides existence from outsiders with no access path, 403 tells a member they
// targeted the wrong org context.
func (d Deps) orgGuard(resolver OrgResolver, mode guardMode) Stage {
	return Stage{
		Name: "org-guard",
		Run: func(rc *Ctx) *Rejection {
			resolved, found, err := resolver(rc.R)
			if err != nil {
				return rejectInternal(err)
			}
			if !found {
				return reject(http.StatusNotFound, CodeNotFound, "resource not found", "org_not_found")
			}
			rc.ResolvedOrg = resolved

			if d.allowedOrg(rc, resolved, mode) {
				return nil
			}

			d.auditOrgMismatch(rc, resolved)
			return reject(http.StatusForbidden, CodeForbidden,
				"access to this resource is not permitted", "org_mismatch")
		},
	}
}

func (d Deps) allowedOrg(rc *Ctx, resolved uuid.UUID, mode guardMode) bool {
	p := rc.Principal
	if p == nil {
		return false
	}
	if p.IsService() || mode == guardEquality {
		return rc.ActiveOrg != uuid.Nil && rc.ActiveOrg == resolved
	}
	_, member := p.RoleIn(resolved)
	return member
}

// auditOrgMismatch records a cross-org access attempt with both org IDs: the
// isolation-violation feed is the primary input for tenancy incident triage.
func (d Deps) auditOrgMismatch(rc *Ctx, resolved uuid.UUID) {
	p := rc.Principal
	actorID, actorType := uuid.Nil, audit.ActorTypeAnonymous
	if p != nil {
		actorID = p.ID
		actorType = string(p.Type)
	}
	event := audit.BuildEvent(resolved, actorID, actorType, audit.ActionOrgMismatch,
		map[string]any{
			"active_org":   rc.ActiveOrg.String(),
			"resolved_org": resolved.String(),
		})
	if err := d.Audit.Emit(rc.R.Context(), audit.WithRequest(event, rc.R)); err != nil {
		d.Logger.Warn().Err(err).Msg("emit org mismatch audit event")
	}
}
