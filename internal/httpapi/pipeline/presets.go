package pipeline

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/config"
	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Deps bundles what every stage needs. One Deps value is built at bootstrap
// and shared by all presets; it is read-only after construction.
type Deps struct {
	Store    storage.Store
	Limiter  limiter.Limiter
	Audit    audit.Emitter
	Logger   zerolog.Logger
	Config   *config.Config
	Sessions *SessionManager
}

// NewDeps wires the stage dependency bundle, deriving the session manager
// from configuration.
func NewDeps(store storage.Store, lim limiter.Limiter, emitter audit.Emitter, logger zerolog.Logger, cfg *config.Config) Deps {
	return Deps{
		Store:   store,
		Limiter: lim,
		Audit:   emitter,
		Logger:  logger,
		Config:  cfg,
		Sessions: &SessionManager{
			Store:             store,
			Audit:             emitter,
			Logger:            logger,
			InactivityTimeout: cfg.SessionInactivityTimeout,
			AbsoluteTimeout:   cfg.SessionAbsoluteTimeout,
			ActivityInterval:  cfg.SessionActivityInterval,
			MaxPerUser:        cfg.SessionMaxPerUser,
		},
	}
}

// options is the per-route tuning surface. Presets pick safe defaults;
// options narrow or widen them.
type options struct {
	category    limiter.Category
	csrfOff     bool
	roles       []string
	methodRoles map[string][]string
	newInput    func() any
}

// Option adjusts a preset for one route.
type Option func(*options)

// WithRateCategory overrides the preset's default quota category.
func WithRateCategory(category limiter.Category) Option {
	return func(o *options) { o.category = category }
}

// WithoutCSRF drops the CSRF stage. Only for endpoints that are exclusively
// called with header credentials, never from a browser session.
func WithoutCSRF() Option {
	return func(o *options) { o.csrfOff = true }
}

// WithRoles requires one of the given org roles instead of bare membership.
func WithRoles(roles ...string) Option {
	return func(o *options) { o.roles = roles }
}

// WithMethodRoles scopes role requirements per HTTP method. Methods absent
// from the map require membership only.
func WithMethodRoles(byMethod map[string][]string) Option {
	return func(o *options) { o.methodRoles = byMethod }
}

// WithBodySchema enables the validation stage. newInput must return a fresh
// pointer to the request struct on every call.
func WithBodySchema(newInput func() any) Option {
	return func(o *options) { o.newInput = newInput }
}

func buildOptions(category limiter.Category, opts []Option) options {
	o := options{category: category}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Public composes the unauthenticated preset: security headers and rate
// limiting only. Login, health, and other pre-session endpoints use it.
func (d Deps) Public(handler http.HandlerFunc, opts ...Option) http.Handler {
	o := buildOptions(limiter.CategoryStandardAPI, opts)
	stages := []Stage{
		securityHeaders(d.Config.Environment),
		d.rateLimit(o.category),
	}
	stages = appendValidation(stages, o)
	return newPipeline("public", d.Logger, stages, handler)
}

// OrgProtected composes the standard org-scoped preset: authentication, org
// selection, CSRF, the org isolation guard, and role enforcement. The
// resolver is mandatory; composing an org preset without one is a programming
// error caught at route registration, not a runtime 500.
func (d Deps) OrgProtected(resolver OrgResolver, handler http.HandlerFunc, opts ...Option) http.Handler {
	return d.orgPreset("org-protected", limiter.CategoryStandardAPI, guardEquality, resolver, handler, opts)
}

// OrgAdmin is OrgProtected restricted to org ADMINs, with the admin quota.
func (d Deps) OrgAdmin(resolver OrgResolver, handler http.HandlerFunc, opts ...Option) http.Handler {
	opts = append([]Option{WithRoles(storage.RoleAdmin)}, opts...)
	return d.orgPreset("org-admin", limiter.CategoryAdmin, guardEquality, resolver, handler, opts)
}

// BrowserAccessible composes the preset for in-page resource loads (file
// downloads, embedded viewers). The guard runs in membership mode: the
// browser sends no org hint header, so any org the user belongs to is an
// acceptable match for the resolved resource.
func (d Deps) BrowserAccessible(resolver OrgResolver, handler http.HandlerFunc, opts ...Option) http.Handler {
	return d.orgPreset("browser-accessible", limiter.CategoryBrowserResource, guardMembership, resolver, handler, opts)
}

func (d Deps) orgPreset(name string, category limiter.Category, mode guardMode, resolver OrgResolver, handler http.HandlerFunc, opts []Option) http.Handler {
	if resolver == nil {
		panic("pipeline: " + name + " preset requires an org resolver")
	}
	o := buildOptions(category, opts)

	stages := []Stage{
		securityHeaders(d.Config.Environment),
		d.rateLimit(o.category),
		d.authenticate(),
		d.selectActiveOrg(),
	}
	if !o.csrfOff {
		stages = append(stages, d.csrfProtect())
	}
	stages = append(stages, d.orgGuard(resolver, mode))
	stages = append(stages, d.roleStage(o))
	stages = appendValidation(stages, o)
	return newPipeline(name, d.Logger, stages, handler)
}

// PlatformAdmin composes the cross-org operational preset. No org guard: the
// endpoint inherently spans orgs, and PLATFORM_ADMIN is the gate instead.
func (d Deps) PlatformAdmin(handler http.HandlerFunc, opts ...Option) http.Handler {
	o := buildOptions(limiter.CategoryAdmin, opts)
	stages := []Stage{
		securityHeaders(d.Config.Environment),
		d.rateLimit(o.category),
		d.authenticate(),
		d.selectActiveOrg(),
	}
	if !o.csrfOff {
		stages = append(stages, d.csrfProtect())
	}
	stages = append(stages, d.requirePlatformAdmin())
	stages = appendValidation(stages, o)
	return newPipeline("platform-admin", d.Logger, stages, handler)
}

// UserPrivate composes the preset for user-scoped resources (profile, own
// sessions). Authentication and CSRF apply; no org guard runs because the
// resource is keyed by the principal itself.
func (d Deps) UserPrivate(handler http.HandlerFunc, opts ...Option) http.Handler {
	o := buildOptions(limiter.CategoryStandardAPI, opts)
	stages := []Stage{
		securityHeaders(d.Config.Environment),
		d.rateLimit(o.category),
		d.authenticate(),
		d.selectActiveOrg(),
	}
	if !o.csrfOff {
		stages = append(stages, d.csrfProtect())
	}
	stages = appendValidation(stages, o)
	return newPipeline("user-private", d.Logger, stages, handler)
}

func (d Deps) roleStage(o options) Stage {
	if o.methodRoles != nil {
		return d.requireMethodRoles(o.methodRoles)
	}
	return d.requireRoles(o.roles...)
}

func appendValidation(stages []Stage, o options) []Stage {
	if o.newInput != nil {
		stages = append(stages, validateBody(o.newInput))
	}
	return stages
}
