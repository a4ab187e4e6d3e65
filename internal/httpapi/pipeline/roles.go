package pipeline

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// requireRoles enforces that the principal holds one of the given roles in
// the active org. ADMIN satisfies any requirement. An empty role list means
// membership alone is enough. Role names compare case-insensitively.
func (d Deps) requireRoles(roles ...string) Stage {
	return Stage{
		Name: "role-guard",
		Run: func(rc *Ctx) *Rejection {
			return d.checkRoles(rc, roles)
		},
	}
}

// requireMethodRoles scopes role requirements per HTTP method, so one route
// can allow reads to every member while writes need ADMIN. Methods absent
// from the map fall back to membership-only.
func (d Deps) requireMethodRoles(byMethod map[string][]string) Stage {
	return Stage{
		Name: "role-guard",
		Run: func(rc *Ctx) *Rejection {
			return d.checkRoles(rc, byMethod[rc.R.Method])
		},
	}
}

// requirePlatformAdmin gates cross-org operational endpoints: the principal
// must carry PLATFORM_ADMIN in at least one org. Service principals never
// qualify; platform authority is not delegated to machines.
func (d Deps) requirePlatformAdmin() Stage {
	return Stage{
		Name: "role-guard",
		Run: func(rc *Ctx) *Rejection {
			p := rc.Principal
			if p != nil && !p.IsService() && p.HasRoleAnywhere(storage.RolePlatformAdmin) {
				return nil
			}
			d.auditRoleDenied(rc, []string{storage.RolePlatformAdmin})
			return rejectForbidden()
		},
	}
}

func (d Deps) checkRoles(rc *Ctx, roles []string) *Rejection {
	role, member := rc.Principal.RoleIn(rc.ActiveOrg)
	if !member || rc.ActiveOrg == uuid.Nil {
		d.auditRoleDenied(rc, roles)
		return rejectForbidden()
	}
	if len(roles) == 0 || strings.EqualFold(role, storage.RoleAdmin) {
		return nil
	}
	for _, required := range roles {
		if strings.EqualFold(role, required) {
			return nil
		}
	}
	d.auditRoleDenied(rc, roles)
	return rejectForbidden()
}

func rejectForbidden() *Rejection {
	return reject(http.StatusForbidden, CodeForbidden,
		"insufficient permissions for this operation", "role_denied")
}

func (d Deps) auditRoleDenied(rc *Ctx, roles []string) {
	actorID, actorType := uuid.Nil, audit.ActorTypeAnonymous
	if rc.Principal != nil {
		actorID = rc.Principal.ID
		actorType = string(rc.Principal.Type)
	}
	event := audit.BuildEvent(rc.ActiveOrg, actorID, actorType, audit.ActionRoleDenied,
		map[string]any{"required_roles": roles})
	if err := d.Audit.Emit(rc.R.Context(), audit.WithRequest(event, rc.R)); err != nil {
		d.Logger.Warn().Err(err).Msg("emit role denial audit event")
	}
}
