package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

func setupStore(t *testing.T) (*Store, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.RunContainer(ctx,
		tcpostgres.WithDatabase("caseflow"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)

	_, filename, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations", "sql")

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, migrationsDir))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	store := NewStoreFromPool(pool)

	cleanup := func() {
		store.Close()
		_ = db.Close()
		require.NoError(t, container.Terminate(ctx))
	}

	return store, cleanup
}

func seedOrg(t *testing.T, store *Store, slug string) uuid.UUID {
	t.Helper()
	var orgID uuid.UUID
	err := store.Pool().QueryRow(context.Background(),
		`INSERT INTO orgs (slug, name) VALUES ($1, $2) RETURNING org_id`,
		slug, slug).Scan(&orgID)
	require.NoError(t, err)
	return orgID
}

func seedUserRow(t *testing.T, store *Store, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := store.Pool().Exec(context.Background(),
		`INSERT INTO users (user_id, email, display_name) VALUES ($1, $2, $3)`,
		id, email, "Seeded User")
	require.NoError(t, err)
	return id
}

func TestUpsertUserCreatesThenUpdates(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	id := uuid.New()

	user, created, err := store.UpsertUser(ctx, storage.UpsertUserParams{
		ID:          id,
		Email:       "first@example.com",
		DisplayName: "First",
		LastLoginAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "first@example.com", user.Email)

	user, created, err = store.UpsertUser(ctx, storage.UpsertUserParams{
		ID:          id,
		Email:       "first@example.com",
		DisplayName: "Renamed",
		LastLoginAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, created, "second upsert must update in place")
	require.Equal(t, "Renamed", user.DisplayName)

	fetched, err := store.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Renamed", fetched.DisplayName)
	require.NotNil(t, fetched.LastLoginAt)
}

func TestMembershipsOrderedByCreation(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUserRow(t, store, "member@example.com")
	orgA := seedOrg(t, store, "org-a")
	orgB := seedOrg(t, store, "org-b")

	require.NoError(t, store.CreateMembership(ctx, storage.Membership{
		UserID: userID, OrgID: orgA, Role: storage.RoleUser,
	}))
	require.NoError(t, store.CreateMembership(ctx, storage.Membership{
		UserID: userID, OrgID: orgB, Role: storage.RoleAdmin,
	}))

	memberships, err := store.ListMemberships(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	require.Equal(t, orgA, memberships[0].OrgID, "first membership is the oldest")

	m, err := store.GetMembership(ctx, userID, orgB)
	require.NoError(t, err)
	require.Equal(t, storage.RoleAdmin, m.Role)

	_, err = store.GetMembership(ctx, userID, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUserRow(t, store, "sess@example.com")

	sess, err := store.CreateSession(ctx, storage.CreateSessionParams{
		TokenHash:   "hash-1",
		UserID:      userID,
		Email:       "sess@example.com",
		DisplayName: "Sess",
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
		IPAddress:   "203.0.113.7",
	})
	require.NoError(t, err)
	require.Equal(t, "hash-1", sess.TokenHash)

	activity := time.Now().UTC().Add(5 * time.Minute)
	require.NoError(t, store.TouchSession(ctx, "hash-1", activity))

	got, err := store.GetSession(ctx, "hash-1")
	require.NoError(t, err)
	require.WithinDuration(t, activity, got.LastActivityAt, time.Second)

	_, err = store.CreateSession(ctx, storage.CreateSessionParams{
		TokenHash: "hash-2",
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	sessions, err := store.ListSessionsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "hash-1", sessions[0].TokenHash, "ordered by last activity, most recent first")

	require.NoError(t, store.DeleteSession(ctx, "hash-1"))
	_, err = store.GetSession(ctx, "hash-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.RevokeSessionsForUser(ctx, userID, time.Now().UTC()))
	sessions, err = store.ListSessionsByUser(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, sessions, "revoked sessions drop out of the listing")

	got, err = store.GetSession(ctx, "hash-2")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
}

func TestAPIKeyLookupByFingerprint(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	orgID := seedOrg(t, store, "keys")

	var accountID uuid.UUID
	err := store.Pool().QueryRow(ctx,
		`INSERT INTO service_accounts (org_id, client_id, client_secret_hash, name)
		 VALUES ($1, 'svc-billing', 'hash', 'billing-sync') RETURNING account_id`,
		orgID).Scan(&accountID)
	require.NoError(t, err)

	var keyID uuid.UUID
	err = store.Pool().QueryRow(ctx,
		`INSERT INTO api_keys (org_id, account_id, fingerprint)
		 VALUES ($1, $2, 'fp-123') RETURNING key_id`,
		orgID, accountID).Scan(&keyID)
	require.NoError(t, err)

	key, account, err := store.GetAPIKeyByFingerprint(ctx, "fp-123")
	require.NoError(t, err)
	require.Equal(t, keyID, key.ID)
	require.Equal(t, accountID, account.ID)
	require.Equal(t, orgID, account.OrgID)

	_, _, err = store.GetAPIKeyByFingerprint(ctx, "fp-missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	usedAt := time.Now().UTC()
	require.NoError(t, store.TouchAPIKey(ctx, keyID, usedAt))

	account2, err := store.GetServiceAccountByClientID(ctx, "svc-billing")
	require.NoError(t, err)
	require.Equal(t, accountID, account2.ID)
}

func TestOrgResolutionLookups(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	orgID := seedOrg(t, store, "resolve")

	var projectID uuid.UUID
	err := store.Pool().QueryRow(ctx,
		`INSERT INTO projects (org_id, name) VALUES ($1, 'Case 42') RETURNING project_id`,
		orgID).Scan(&projectID)
	require.NoError(t, err)

	var documentID uuid.UUID
	err = store.Pool().QueryRow(ctx,
		`INSERT INTO documents (project_id, title) VALUES ($1, 'Draft') RETURNING document_id`,
		projectID).Scan(&documentID)
	require.NoError(t, err)

	var searchID uuid.UUID
	err = store.Pool().QueryRow(ctx,
		`INSERT INTO search_history (project_id, query) VALUES ($1, 'negligence') RETURNING search_id`,
		projectID).Scan(&searchID)
	require.NoError(t, err)

	var matchID uuid.UUID
	err = store.Pool().QueryRow(ctx,
		`INSERT INTO citation_matches (search_id, citation) VALUES ($1, '1 U.S. 1') RETURNING match_id`,
		searchID).Scan(&matchID)
	require.NoError(t, err)

	cases := []struct {
		name   string
		lookup func(context.Context, uuid.UUID) (uuid.UUID, bool, error)
		id     uuid.UUID
	}{
		{"project", store.GetProjectOrg, projectID},
		{"document", store.GetDocumentOrg, documentID},
		{"search", store.GetSearchHistoryOrg, searchID},
		{"citation match", store.GetCitationMatchOrg, matchID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found, err := tc.lookup(ctx, tc.id)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, orgID, got)

			_, found, err = tc.lookup(ctx, uuid.New())
			require.NoError(t, err)
			require.False(t, found, "missing resources report not-found, not an error")
		})
	}
}
