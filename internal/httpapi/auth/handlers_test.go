package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/config"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/security"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
	"github.com/otherjamesbrown/caseflow-api/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:              "caseflow-api",
		Environment:              "test",
		SessionInactivityTimeout: 30 * time.Minute,
		SessionAbsoluteTimeout:   12 * time.Hour,
		SessionActivityInterval:  5 * time.Minute,
		SessionMaxPerUser:        5,
		CSRFCookieName:           "caseflow_csrf",
		CSRFHeaderName:           "X-CSRF-Token",
		CSRFTokenTTL:             2 * time.Hour,
		SessionCookieName:        "caseflow_session",
		OrgHeaderName:            "X-Org-ID",
		APIKeyHeaderName:         "X-API-Key",
		RateLimitDisabled:        true,
	}
}

func setupHandlers(t *testing.T) (*Handlers, *memory.Store, http.Handler) {
	t.Helper()

	store := memory.NewStore()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := pipeline.NewDeps(store, limiter.NewMemoryLimiter(nil),
		audit.NewNoopEmitter(), zerolog.Nop(), testConfig())
	deps.Sessions.Background = func(fn func(context.Context)) { fn(context.Background()) }

	h := &Handlers{
		Deps: deps,
		Lockout: security.NewLockoutTracker(client, security.LockoutConfig{
			MaxAttempts:     3,
			LockoutDuration: 15 * time.Minute,
			WindowDuration:  15 * time.Minute,
		}),
	}

	router := chi.NewRouter()
	h.Routes(router)
	return h, store, router
}

func seedLoginUser(t *testing.T, store *memory.Store, password string) storage.User {
	t.Helper()
	hash, err := security.HashSecret(password)
	require.NoError(t, err)
	user := storage.User{
		ID:           uuid.New(),
		Email:        "lawyer@example.com",
		DisplayName:  "Test Lawyer",
		PasswordHash: hash,
		Status:       "active",
	}
	store.AddUser(user)
	return user
}

func postLogin(router http.Handler, email, password string) *httptest.ResponseRecorder {
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestLoginCreatesSession(t *testing.T) {
	h, store, router := setupHandlers(t)

	seedLoginUser(t, store, "str0ng-password")

	rec := postLogin(router, "lawyer@example.com", "str0ng-password")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := sessionCookieFrom(t, rec, h.Deps.Config.SessionCookieName)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, 1, store.SessionCount())

	// The stored session is keyed by hash, never the raw token.
	_, err := store.GetSession(context.Background(), cookie.Value)
	assert.Error(t, err)
	_, err = store.GetSession(context.Background(), security.HashSessionToken(cookie.Value))
	assert.NoError(t, err)
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	_, store, router := setupHandlers(t)
	seedLoginUser(t, store, "str0ng-password")

	wrongPassword := postLogin(router, "lawyer@example.com", "wrong-password")
	unknownEmail := postLogin(router, "nobody@example.com", "wrong-password")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String(),
		"unknown email and wrong password must be indistinguishable")
	assert.Equal(t, 0, store.SessionCount())
}

func TestLoginLockout(t *testing.T) {
	_, store, router := setupHandlers(t)
	seedLoginUser(t, store, "str0ng-password")

	for i := 0; i < 3; i++ {
		rec := postLogin(router, "lawyer@example.com", "wrong-password")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := postLogin(router, "lawyer@example.com", "str0ng-password")
	assert.Equal(t, http.StatusForbidden, rec.Code,
		"even the correct password is refused while locked")
	assert.Equal(t, 0, store.SessionCount())
}

func TestLoginValidation(t *testing.T) {
	_, _, router := setupHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"not-an-email","password":"short"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	h, store, router := setupHandlers(t)
	seedLoginUser(t, store, "str0ng-password")

	login := postLogin(router, "lawyer@example.com", "str0ng-password")
	require.Equal(t, http.StatusOK, login.Code)
	session := sessionCookieFrom(t, login, h.Deps.Config.SessionCookieName)

	csrf, err := security.NewCSRFToken()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(session)
	req.AddCookie(&http.Cookie{Name: h.Deps.Config.CSRFCookieName, Value: csrf})
	req.Header.Set(h.Deps.Config.CSRFHeaderName, csrf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, 0, store.SessionCount())

	cleared := sessionCookieFrom(t, rec, h.Deps.Config.SessionCookieName)
	assert.Equal(t, -1, cleared.MaxAge)

	// The dead cookie no longer authenticates.
	req = httptest.NewRequest(http.MethodGet, "/me/sessions", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOwnSessionsMarksCurrent(t *testing.T) {
	h, store, router := setupHandlers(t)
	seedLoginUser(t, store, "str0ng-password")

	postLogin(router, "lawyer@example.com", "str0ng-password")
	second := postLogin(router, "lawyer@example.com", "str0ng-password")
	require.Equal(t, 2, store.SessionCount())

	session := sessionCookieFrom(t, second, h.Deps.Config.SessionCookieName)
	req := httptest.NewRequest(http.MethodGet, "/me/sessions", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current":true`)
}

func TestRevokeUserSessionsRequiresPlatformAdmin(t *testing.T) {
	h, store, router := setupHandlers(t)

	orgID := uuid.New()
	target := seedLoginUser(t, store, "str0ng-password")

	admin := storage.User{ID: uuid.New(), Email: "ops@example.com", Status: "active"}
	store.AddUser(admin)
	store.AddMembership(storage.Membership{UserID: admin.ID, OrgID: orgID, Role: storage.RolePlatformAdmin})

	adminToken, err := security.NewSessionToken()
	require.NoError(t, err)
	_, err = store.CreateSession(context.Background(), storage.CreateSessionParams{
		TokenHash: security.HashSessionToken(adminToken),
		UserID:    admin.ID,
		Email:     admin.Email,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	login := postLogin(router, "lawyer@example.com", "str0ng-password")
	require.Equal(t, http.StatusOK, login.Code)

	csrf, err := security.NewCSRFToken()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodDelete, "/admin/users/"+target.ID.String()+"/sessions", nil)
	req.AddCookie(&http.Cookie{Name: h.Deps.Config.SessionCookieName, Value: adminToken})
	req.AddCookie(&http.Cookie{Name: h.Deps.Config.CSRFCookieName, Value: csrf})
	req.Header.Set(h.Deps.Config.CSRFHeaderName, csrf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	sessions, err := store.ListSessionsByUser(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "target sessions are revoked")
}
