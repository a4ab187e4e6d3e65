// Package postgres provides the Postgres-backed storage.Store implementation.
//
// Purpose:
//
//	This package persists users, memberships, service accounts, API keys,
//	sessions, and the domain rows the org resolvers walk (projects, documents,
//	search history, citation matches). It is the production storage layer
//	behind the security pipeline.
//
// Dependencies:
//   - github.com/jackc/pgx/v5: Postgres driver and connection pooling
//   - github.com/google/uuid: Entity identifiers
//
// Key Responsibilities:
//   - Implement storage.Store with one transaction per call
//   - Map pgx.ErrNoRows to storage.ErrNotFound consistently
//   - Multi-hop org lookups expressed as single SQL joins
//
// Thread Safety:
//   - Store is safe for concurrent use (pgxpool handles connection sharing)
//
// Error Handling:
//   - Absent rows return storage.ErrNotFound
//   - Org lookups report "missing or org-less" via a false bool, never an error
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Store provides Postgres-backed persistence for the security pipeline.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store from a connection string and takes ownership of the pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool for readiness probes.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

const userColumns = `user_id, email, display_name, password_hash, status, last_login_at, created_at, updated_at`

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (storage.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE user_id = $1 AND deleted_at IS NULL
	`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email (stored lowercase).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email = LOWER($1) AND deleted_at IS NULL
	`, email)
	return scanUser(row)
}

// UpsertUser creates the user projection if absent, otherwise refreshes
// profile fields and last login. The returned bool reports creation.
func (s *Store) UpsertUser(ctx context.Context, params storage.UpsertUserParams) (storage.User, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, display_name, status, last_login_at)
		VALUES ($1, LOWER($2), $3, 'active', $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = NOW()
		RETURNING `+userColumns+`, (xmax = 0) AS inserted
	`, params.ID, params.Email, params.DisplayName, params.LastLoginAt)

	var (
		u        storage.User
		inserted bool
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Status,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &inserted); err != nil {
		return storage.User{}, false, err
	}
	return u, inserted, nil
}

// ListMemberships returns all memberships for a user ordered by creation time,
// so "first membership" is deterministic for active-org fallback.
func (s *Store) ListMemberships(ctx context.Context, userID uuid.UUID) ([]storage.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, org_id, role, created_at FROM org_memberships
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Membership
	for rows.Next() {
		var m storage.Membership
		if err := rows.Scan(&m.UserID, &m.OrgID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMembership retrieves the membership for a (user, org) pair.
func (s *Store) GetMembership(ctx context.Context, userID, orgID uuid.UUID) (storage.Membership, error) {
	var m storage.Membership
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, org_id, role, created_at FROM org_memberships
		WHERE user_id = $1 AND org_id = $2
	`, userID, orgID).Scan(&m.UserID, &m.OrgID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Membership{}, storage.ErrNotFound
		}
		return storage.Membership{}, err
	}
	return m, nil
}

// CreateMembership inserts a membership row. Duplicate (user, org) pairs are
// ignored so the default-membership assignment is idempotent.
func (s *Store) CreateMembership(ctx context.Context, m storage.Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_memberships (user_id, org_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, org_id) DO NOTHING
	`, m.UserID, m.OrgID, m.Role)
	return err
}

// GetServiceAccountByClientID retrieves an active service account by client ID.
func (s *Store) GetServiceAccountByClientID(ctx context.Context, clientID string) (storage.ServiceAccount, error) {
	var sa storage.ServiceAccount
	err := s.pool.QueryRow(ctx, `
		SELECT account_id, org_id, client_id, client_secret_hash, name, status, created_at
		FROM service_accounts
		WHERE client_id = $1 AND status = 'active' AND deleted_at IS NULL
	`, clientID).Scan(&sa.ID, &sa.OrgID, &sa.ClientID, &sa.ClientSecretHash, &sa.Name, &sa.Status, &sa.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ServiceAccount{}, storage.ErrNotFound
		}
		return storage.ServiceAccount{}, err
	}
	return sa, nil
}

// GetAPIKeyByFingerprint retrieves an API key and its owning service account.
func (s *Store) GetAPIKeyByFingerprint(ctx context.Context, fingerprint string) (storage.APIKey, storage.ServiceAccount, error) {
	var (
		k  storage.APIKey
		sa storage.ServiceAccount
	)
	err := s.pool.QueryRow(ctx, `
		SELECT k.key_id, k.org_id, k.account_id, k.fingerprint, k.status, k.expires_at, k.last_used_at, k.created_at,
		       a.account_id, a.org_id, a.client_id, a.client_secret_hash, a.name, a.status, a.created_at
		FROM api_keys k
		JOIN service_accounts a ON a.account_id = k.account_id
		WHERE k.fingerprint = $1 AND k.deleted_at IS NULL
	`, fingerprint).Scan(
		&k.ID, &k.OrgID, &k.ServiceAccountID, &k.Fingerprint, &k.Status, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt,
		&sa.ID, &sa.OrgID, &sa.ClientID, &sa.ClientSecretHash, &sa.Name, &sa.Status, &sa.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.APIKey{}, storage.ServiceAccount{}, storage.ErrNotFound
		}
		return storage.APIKey{}, storage.ServiceAccount{}, err
	}
	return k, sa, nil
}

// TouchAPIKey updates last_used_at. Best-effort caller semantics; the row not
// existing anymore is not an error.
func (s *Store) TouchAPIKey(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE key_id = $1
	`, id, usedAt)
	return err
}

const sessionColumns = `token_hash, user_id, email, display_name, created_at, last_activity_at, expires_at, ip_address, user_agent, revoked_at`

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, params storage.CreateSessionParams) (storage.Session, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (token_hash, user_id, email, display_name, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns+`
	`, params.TokenHash, params.UserID, params.Email, params.DisplayName,
		params.ExpiresAt, params.IPAddress, params.UserAgent)
	return scanSession(row)
}

// GetSession retrieves a session by token hash.
func (s *Store) GetSession(ctx context.Context, tokenHash string) (storage.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1
	`, tokenHash)
	return scanSession(row)
}

// TouchSession updates last_activity_at. Callers throttle the write rate.
func (s *Store) TouchSession(ctx context.Context, tokenHash string, activityAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET last_activity_at = $2 WHERE token_hash = $1
	`, tokenHash, activityAt)
	return err
}

// DeleteSession removes a session row. Deleting an absent row is not an error.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

// ListSessionsByUser returns unrevoked sessions ordered by last activity,
// most recent first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]storage.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY last_activity_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Session
	for rows.Next() {
		sess, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RevokeSessionsForUser marks all of a user's sessions revoked (e.g. after a
// password change).
func (s *Store) RevokeSessionsForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, revokedAt)
	return err
}

// GetProjectOrg resolves the org owning a project.
func (s *Store) GetProjectOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, bool, error) {
	return s.orgLookup(ctx, `
		SELECT org_id FROM projects WHERE project_id = $1 AND deleted_at IS NULL
	`, projectID)
}

// GetDocumentOrg resolves the org owning a document via its project.
func (s *Store) GetDocumentOrg(ctx context.Context, documentID uuid.UUID) (uuid.UUID, bool, error) {
	return s.orgLookup(ctx, `
		SELECT p.org_id
		FROM documents d
		JOIN projects p ON p.project_id = d.project_id
		WHERE d.document_id = $1 AND d.deleted_at IS NULL AND p.deleted_at IS NULL
	`, documentID)
}

// GetSearchHistoryOrg resolves the org owning a search-history entry via its
// project.
func (s *Store) GetSearchHistoryOrg(ctx context.Context, searchID uuid.UUID) (uuid.UUID, bool, error) {
	return s.orgLookup(ctx, `
		SELECT p.org_id
		FROM search_history h
		JOIN projects p ON p.project_id = h.project_id
		WHERE h.search_id = $1 AND p.deleted_at IS NULL
	`, searchID)
}

// GetCitationMatchOrg resolves the org owning a citation match through the
// search-history and project chain.
func (s *Store) GetCitationMatchOrg(ctx context.Context, matchID uuid.UUID) (uuid.UUID, bool, error) {
	return s.orgLookup(ctx, `
		SELECT p.org_id
		FROM citation_matches m
		JOIN search_history h ON h.search_id = m.search_id
		JOIN projects p ON p.project_id = h.project_id
		WHERE m.match_id = $1 AND p.deleted_at IS NULL
	`, matchID)
}

// orgLookup runs a single-value org query, mapping "no row" to (zero, false)
// so guards can answer 404 instead of leaking existence.
func (s *Store) orgLookup(ctx context.Context, query string, id uuid.UUID) (uuid.UUID, bool, error) {
	var orgID uuid.UUID
	err := s.pool.QueryRow(ctx, query, id).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return orgID, true, nil
}
