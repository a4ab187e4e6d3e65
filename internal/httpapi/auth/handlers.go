// Package auth implements the login and logout endpoints that bracket the
// session lifecycle.
//
// Purpose:
//
//	Login verifies the password, enforces the lockout policy, and mints the
//	session cookie the pipeline's credential stage resolves on subsequent
//	requests. Logout destroys the backing session server-side so the cookie is
//	dead even if the browser keeps it.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: Route registration
//   - github.com/redis/go-redis/v9 (via internal/security): Lockout counters
//   - internal/httpapi/pipeline: Preset composition and envelopes
//   - internal/storage: User lookup and session persistence
//
// Error Handling:
//   - Unknown email and wrong password return the same generic 401; only the
//     lockout response is distinguishable, and only after repeated failures
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/metrics"
	"github.com/otherjamesbrown/caseflow-api/internal/security"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Handlers holds the dependencies for the authentication endpoints.
type Handlers struct {
	Deps    pipeline.Deps
	Lockout *security.LockoutTracker
}

// Routes registers the authentication endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Method(http.MethodPost, "/auth/login", h.Deps.Public(h.login,
		pipeline.WithRateCategory(limiter.CategoryAuth),
		pipeline.WithBodySchema(func() any { return &loginRequest{} }),
	))
	r.Method(http.MethodPost, "/auth/logout", h.Deps.UserPrivate(h.logout))
	r.Method(http.MethodGet, "/me/sessions", h.Deps.UserPrivate(h.listOwnSessions,
		pipeline.WithRateCategory(limiter.CategoryReadOnly),
	))
	r.Method(http.MethodDelete, "/admin/users/{userID}/sessions", h.Deps.PlatformAdmin(h.revokeUserSessions))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := h.Deps.Config
	input := pipeline.GetInput(ctx).(*loginRequest)

	locked, err := h.Lockout.IsLockedOut(ctx, input.Email)
	if err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("lockout check unavailable")
	}
	if locked {
		h.auditLoginFailure(r, input.Email, "locked_out")
		pipeline.WriteError(w, http.StatusForbidden, pipeline.CodeForbidden,
			"account temporarily locked, try again later")
		return
	}

	user, err := h.Deps.Store.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if err == storage.ErrNotFound {
			h.failLogin(w, r, input.Email, "unknown_email")
			return
		}
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}

	ok, err := security.VerifySecret(input.Password, user.PasswordHash)
	if err != nil {
		h.Deps.Logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("malformed password hash")
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}
	if !ok || user.Status != "active" {
		h.failLogin(w, r, input.Email, "bad_credentials")
		return
	}

	if err := h.Lockout.ClearAttempts(ctx, input.Email); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("clear lockout attempts")
	}

	token, err := security.NewSessionToken()
	if err != nil {
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}
	sess, err := h.Deps.Store.CreateSession(ctx, storage.CreateSessionParams{
		TokenHash:   security.HashSessionToken(token),
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ExpiresAt:   time.Now().UTC().Add(cfg.SessionAbsoluteTimeout),
		IPAddress:   audit.ClientIP(r),
		UserAgent:   r.Header.Get("User-Agent"),
	})
	if err != nil {
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.SessionAbsoluteTimeout.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})

	metrics.RecordAuthResult("login", "success")
	event := audit.BuildEvent(uuid.Nil, user.ID, audit.ActorTypeUser, audit.ActionLoginSuccess, nil)
	if err := h.Deps.Audit.Emit(ctx, audit.WithRequest(event, r)); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("emit login audit event")
	}

	pipeline.WriteJSON(w, http.StatusOK, loginResponse{
		UserID:      user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ExpiresAt:   sess.ExpiresAt,
	})
}

// failLogin records the failure, advances the lockout counter, and returns
// the generic 401 shared by unknown-email and wrong-password outcomes.
func (h *Handlers) failLogin(w http.ResponseWriter, r *http.Request, email, reason string) {
	if _, _, err := h.Lockout.TrackFailedAttempt(r.Context(), email); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("track failed login attempt")
	}
	metrics.RecordAuthResult("login", "failure")
	h.auditLoginFailure(r, email, reason)
	pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthenticated, "authentication required")
}

func (h *Handlers) auditLoginFailure(r *http.Request, email, reason string) {
	event := audit.BuildEvent(uuid.Nil, uuid.Nil, audit.ActorTypeAnonymous,
		audit.ActionLoginFailure, map[string]any{"email": email, "reason": reason})
	if err := h.Deps.Audit.Emit(r.Context(), audit.WithRequest(event, r)); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("emit login failure audit event")
	}
}

// logout deletes the backing session, or revokes every session for the user
// when ?all=true. The cookie is cleared either way.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := pipeline.GetPrincipal(ctx)
	if p == nil || p.SessionTokenHash == "" {
		pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthenticated, "authentication required")
		return
	}

	if r.URL.Query().Get("all") == "true" {
		if err := h.Deps.Store.RevokeSessionsForUser(ctx, p.ID, time.Now().UTC()); err != nil {
			pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
			return
		}
	} else if err := h.Deps.Store.DeleteSession(ctx, p.SessionTokenHash); err != nil && err != storage.ErrNotFound {
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Deps.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Deps.Config.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})

	event := audit.BuildEvent(uuid.Nil, p.ID, audit.ActorTypeUser, audit.ActionLogout, nil)
	if err := h.Deps.Audit.Emit(ctx, audit.WithRequest(event, r)); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("emit logout audit event")
	}

	pipeline.WriteJSON(w, http.StatusNoContent, nil)
}

type sessionSummary struct {
	Current        bool      `json:"current"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// listOwnSessions returns the caller's active sessions. Token hashes stay
// server-side; sessions are described by metadata only.
func (h *Handlers) listOwnSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := pipeline.GetPrincipal(ctx)

	sessions, err := h.Deps.Store.ListSessionsByUser(ctx, p.ID)
	if err != nil {
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			Current:        s.TokenHash == p.SessionTokenHash,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
		})
	}
	pipeline.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// revokeUserSessions force-revokes every session of a user. Platform-admin
// only; used for incident response.
func (h *Handlers) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		pipeline.WriteError(w, http.StatusNotFound, pipeline.CodeNotFound, "resource not found")
		return
	}

	if err := h.Deps.Store.RevokeSessionsForUser(ctx, userID, time.Now().UTC()); err != nil {
		pipeline.WriteError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal server error")
		return
	}

	admin := pipeline.GetPrincipal(ctx)
	event := audit.BuildEvent(uuid.Nil, admin.ID, audit.ActorTypeUser,
		audit.ActionSessionRevoked, map[string]any{"target_user": userID.String()})
	if err := h.Deps.Audit.Emit(ctx, audit.WithRequest(event, r)); err != nil {
		h.Deps.Logger.Warn().Err(err).Msg("emit session revocation audit event")
	}

	pipeline.WriteJSON(w, http.StatusNoContent, nil)
}
