// Package storage defines the persistence contract consumed by the request
// security pipeline.
//
// Purpose:
//
//	This package declares the entity types (users, memberships, service
//	accounts, API keys, sessions) and the Store interface the pipeline depends
//	on. Production code uses the Postgres implementation in storage/postgres;
//	tests substitute the in-memory implementation in storage/memory.
//
// Dependencies:
//   - github.com/google/uuid: Entity identifiers
//
// Key Responsibilities:
//   - Entity structs shared by all store implementations
//   - Store interface: the complete persistence surface of the pipeline
//   - Sentinel errors (ErrNotFound) shared by all implementations
//
// Thread Safety:
//   - Implementations must be safe for concurrent use
//
// Error Handling:
//   - Absent rows are reported as ErrNotFound, never as zero values
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("storage: resource not found")

// Membership roles. Comparison is case-insensitive and RoleAdmin satisfies
// any role requirement.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
	// RolePlatformAdmin gates cross-org operational endpoints.
	RolePlatformAdmin = "PLATFORM_ADMIN"
)

// User is the local projection of a human identity.
type User struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	Status       string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership links a user to an organization with a role. Unique per
// (user, org) pair.
type Membership struct {
	UserID    uuid.UUID
	OrgID     uuid.UUID
	Role      string
	CreatedAt time.Time
}

// ServiceAccount is a machine principal bound to a single organization.
type ServiceAccount struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	ClientID         string
	ClientSecretHash string
	Name             string
	Status           string
	CreatedAt        time.Time
}

// APIKey authenticates a service account by secret fingerprint.
type APIKey struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	ServiceAccountID uuid.UUID
	Fingerprint      string
	Status           string
	ExpiresAt        *time.Time
	LastUsedAt       *time.Time
	CreatedAt        time.Time
}

// Session is a persisted browser session keyed by the SHA-256 hash of the
// opaque cookie token. Email and DisplayName are the identity claims captured
// at login; the credential resolver uses them to upsert the user projection.
type Session struct {
	TokenHash      string
	UserID         uuid.UUID
	Email          string
	DisplayName    string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	IPAddress      string
	UserAgent      string
	RevokedAt      *time.Time
}

// UpsertUserParams carries the identity claims applied to the user projection.
type UpsertUserParams struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	LastLoginAt time.Time
}

// CreateSessionParams carries everything recorded at login.
type CreateSessionParams struct {
	TokenHash   string
	UserID      uuid.UUID
	Email       string
	DisplayName string
	ExpiresAt   time.Time
	IPAddress   string
	UserAgent   string
}

// Store is the persistence surface the security pipeline depends on. Every
// method is transactional per call; no transaction spans pipeline layers.
type Store interface {
	// Users and memberships.
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// UpsertUser creates the user projection if absent, otherwise updates
	// profile fields and last login. The bool reports whether a row was created.
	UpsertUser(ctx context.Context, params UpsertUserParams) (User, bool, error)
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	GetMembership(ctx context.Context, userID, orgID uuid.UUID) (Membership, error)
	CreateMembership(ctx context.Context, m Membership) error

	// Machine credentials.
	GetServiceAccountByClientID(ctx context.Context, clientID string) (ServiceAccount, error)
	GetAPIKeyByFingerprint(ctx context.Context, fingerprint string) (APIKey, ServiceAccount, error)
	TouchAPIKey(ctx context.Context, id uuid.UUID, usedAt time.Time) error

	// Sessions.
	CreateSession(ctx context.Context, params CreateSessionParams) (Session, error)
	GetSession(ctx context.Context, tokenHash string) (Session, error)
	TouchSession(ctx context.Context, tokenHash string, activityAt time.Time) error
	DeleteSession(ctx context.Context, tokenHash string) error
	// ListSessionsByUser returns the user's unrevoked sessions ordered by
	// last activity, most recent first.
	ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]Session, error)
	RevokeSessionsForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error

	// Org resolution lookups. The bool is false when the resource is missing
	// or has no owning org; implementations must not treat that as an error.
	GetProjectOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, bool, error)
	GetDocumentOrg(ctx context.Context, documentID uuid.UUID) (uuid.UUID, bool, error)
	GetSearchHistoryOrg(ctx context.Context, searchID uuid.UUID) (uuid.UUID, bool, error)
	GetCitationMatchOrg(ctx context.Context, matchID uuid.UUID) (uuid.UUID, bool, error)
}
