package pipeline

import (
	"context"
	"time"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/metrics"
	"github.com/otherjamesbrown/caseflow-api/internal/security"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Auth method labels for metrics.
const (
	authMethodAPIKey     = "api_key"
	authMethodClientCred = "client_credentials"
	authMethodSession    = "session"
	authMethodNone       = "none"
)

const statusActive = "active"

// authenticate resolves the request credentials in fixed order: API key
// header, then client credentials, then session cookie. Machine checks run
// first and short-circuit the session lookup entirely. All credential
// failures collapse into the same generic 401 so the response cannot be used
// to probe which check failed.
func (d Deps) authenticate() Stage {
	return Stage{
		Name: "authenticate",
		Run: func(rc *Ctx) *Rejection {
			r := rc.R

			if key := r.Header.Get(d.Config.APIKeyHeaderName); key != "" {
				return d.authenticateAPIKey(rc, key)
			}
			if clientID, secret, ok := r.BasicAuth(); ok {
				return d.authenticateClientCredentials(rc, clientID, secret)
			}
			if cookie, err := r.Cookie(d.Config.SessionCookieName); err == nil && cookie.Value != "" {
				return d.authenticateSession(rc, cookie.Value)
			}

			metrics.RecordAuthResult(authMethodNone, "failure")
			return rejectUnauthenticated()
		},
	}
}

// authenticateAPIKey looks the key up by fingerprint; the raw secret is never
// stored or logged. A matching, active, unexpired key attaches a service
// principal bound to the key's org.
func (d Deps) authenticateAPIKey(rc *Ctx, rawKey string) *Rejection {
	ctx := rc.R.Context()
	fingerprint := security.APIKeyFingerprint(rawKey)

	key, account, err := d.Store.GetAPIKeyByFingerprint(ctx, fingerprint)
	if err != nil {
		if err == storage.ErrNotFound {
			metrics.RecordAuthResult(authMethodAPIKey, "failure")
			return rejectUnauthenticated()
		}
		return rejectInternal(err)
	}
	if key.Status != statusActive || account.Status != statusActive ||
		(key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt)) {
		metrics.RecordAuthResult(authMethodAPIKey, "failure")
		return rejectUnauthenticated()
	}

	d.touchAPIKey(key)
	rc.Principal = servicePrincipal(account)
	metrics.RecordAuthResult(authMethodAPIKey, "success")
	return nil
}

// authenticateClientCredentials verifies Basic auth client_id/client_secret
// against the stored argon2id hash.
func (d Deps) authenticateClientCredentials(rc *Ctx, clientID, secret string) *Rejection {
	ctx := rc.R.Context()

	account, err := d.Store.GetServiceAccountByClientID(ctx, clientID)
	if err != nil {
		if err == storage.ErrNotFound {
			metrics.RecordAuthResult(authMethodClientCred, "failure")
			return rejectUnauthenticated()
		}
		return rejectInternal(err)
	}
	ok, err := security.VerifySecret(secret, account.ClientSecretHash)
	if err != nil {
		return rejectInternal(err)
	}
	if !ok || account.Status != statusActive {
		metrics.RecordAuthResult(authMethodClientCred, "failure")
		return rejectUnauthenticated()
	}

	rc.Principal = servicePrincipal(account)
	metrics.RecordAuthResult(authMethodClientCred, "success")
	return nil
}

// authenticateSession resolves the cookie through the session manager, then
// upserts the local user projection from the session's identity claims. First
// sight of an identity provisions the user and, when configured, a default
// org membership.
func (d Deps) authenticateSession(rc *Ctx, token string) *Rejection {
	ctx := rc.R.Context()
	tokenHash := security.HashSessionToken(token)

	sess, rej := d.Sessions.Resolve(ctx, rc.R, tokenHash)
	if rej != nil {
		metrics.RecordAuthResult(authMethodSession, "failure")
		return rej
	}
	if sess == nil {
		metrics.RecordAuthResult(authMethodSession, "failure")
		return rejectUnauthenticated()
	}

	user, created, err := d.Store.UpsertUser(ctx, storage.UpsertUserParams{
		ID:          sess.UserID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		LastLoginAt: time.Now().UTC(),
	})
	if err != nil {
		return rejectInternal(err)
	}
	if created {
		d.provisionDefaultMembership(ctx, rc, user)
	}

	memberships, err := d.Store.ListMemberships(ctx, user.ID)
	if err != nil {
		return rejectInternal(err)
	}

	rc.Principal = &Principal{
		Type:             PrincipalHuman,
		ID:               user.ID,
		Email:            user.Email,
		DisplayName:      user.DisplayName,
		Identity:         user.Email,
		Memberships:      memberships,
		SessionTokenHash: tokenHash,
	}
	metrics.RecordAuthResult(authMethodSession, "success")
	return nil
}

// provisionDefaultMembership grants a first-login user the configured default
// org membership and records the provisioning event. Failures are logged and
// the request proceeds: the user simply has no memberships yet.
func (d Deps) provisionDefaultMembership(ctx context.Context, rc *Ctx, user storage.User) {
	orgID, ok := d.Config.DefaultOrg()
	if ok {
		err := d.Store.CreateMembership(ctx, storage.Membership{
			UserID: user.ID,
			OrgID:  orgID,
			Role:   storage.RoleUser,
		})
		if err != nil {
			d.Logger.Error().Err(err).Str("user_id", user.ID.String()).
				Msg("create default membership")
		}
	}

	event := audit.BuildEvent(orgID, user.ID, audit.ActorTypeUser,
		audit.ActionUserProvisioned, map[string]any{"email": user.Email})
	if err := d.Audit.Emit(ctx, audit.WithRequest(event, rc.R)); err != nil {
		d.Logger.Warn().Err(err).Msg("emit provisioning audit event")
	}
}

// touchAPIKey records key usage without blocking the request.
func (d Deps) touchAPIKey(key storage.APIKey) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Store.TouchAPIKey(ctx, key.ID, time.Now().UTC()); err != nil {
			d.Logger.Warn().Err(err).Msg("touch api key usage")
		}
	}()
}

func servicePrincipal(account storage.ServiceAccount) *Principal {
	acct := account
	return &Principal{
		Type:     PrincipalService,
		ID:       account.ID,
		Identity: "service:" + account.Name,
		Service:  &acct,
	}
}
