// Package memory provides an in-memory storage.Store for unit tests.
//
// Purpose:
//
//	This package lets pipeline tests run without Postgres. It mirrors the
//	semantics of the Postgres store (ErrNotFound mapping, "missing org" as a
//	false bool, ordering guarantees) so tests exercise the same contract the
//	production store honors.
//
// Thread Safety:
//   - All methods are guarded by a single mutex
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	users           map[uuid.UUID]storage.User
	memberships     map[uuid.UUID][]storage.Membership
	serviceAccounts map[string]storage.ServiceAccount // by client ID
	apiKeys         map[string]storage.APIKey         // by fingerprint
	sessions        map[string]storage.Session        // by token hash

	projectOrgs   map[uuid.UUID]uuid.UUID // project -> org
	documentProj  map[uuid.UUID]uuid.UUID // document -> project
	searchProj    map[uuid.UUID]uuid.UUID // search -> project
	matchSearch   map[uuid.UUID]uuid.UUID // match -> search

	// FailNext causes the next store call to return this error, for testing
	// persistence-failure paths. Cleared after one use.
	FailNext error
}

var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:           make(map[uuid.UUID]storage.User),
		memberships:     make(map[uuid.UUID][]storage.Membership),
		serviceAccounts: make(map[string]storage.ServiceAccount),
		apiKeys:         make(map[string]storage.APIKey),
		sessions:        make(map[string]storage.Session),
		projectOrgs:     make(map[uuid.UUID]uuid.UUID),
		documentProj:    make(map[uuid.UUID]uuid.UUID),
		searchProj:      make(map[uuid.UUID]uuid.UUID),
		matchSearch:     make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *Store) failure() error {
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}
	return nil
}

// --- seed helpers for tests ---

// AddUser inserts a user directly.
func (s *Store) AddUser(u storage.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddMembership inserts a membership directly.
func (s *Store) AddMembership(m storage.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.memberships[m.UserID] = append(s.memberships[m.UserID], m)
}

// AddServiceAccount inserts a service account directly.
func (s *Store) AddServiceAccount(sa storage.ServiceAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceAccounts[sa.ClientID] = sa
}

// AddAPIKey inserts an API key directly.
func (s *Store) AddAPIKey(k storage.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[k.Fingerprint] = k
}

// AddProject registers a project under an org and returns its ID.
func (s *Store) AddProject(orgID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.projectOrgs[id] = orgID
	return id
}

// AddDocument registers a document under a project and returns its ID.
func (s *Store) AddDocument(projectID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.documentProj[id] = projectID
	return id
}

// AddSearch registers a search-history entry under a project and returns its ID.
func (s *Store) AddSearch(projectID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.searchProj[id] = projectID
	return id
}

// AddCitationMatch registers a citation match under a search and returns its ID.
func (s *Store) AddCitationMatch(searchID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.matchSearch[id] = searchID
	return id
}

// SessionCount reports the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// UserCount reports the number of stored users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// --- storage.Store ---

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.User{}, err
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (s *Store) UpsertUser(_ context.Context, params storage.UpsertUserParams) (storage.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.User{}, false, err
	}
	now := time.Now().UTC()
	lastLogin := params.LastLoginAt
	if existing, ok := s.users[params.ID]; ok {
		existing.Email = params.Email
		existing.DisplayName = params.DisplayName
		existing.LastLoginAt = &lastLogin
		existing.UpdatedAt = now
		s.users[params.ID] = existing
		return existing, false, nil
	}
	u := storage.User{
		ID:          params.ID,
		Email:       params.Email,
		DisplayName: params.DisplayName,
		Status:      "active",
		LastLoginAt: &lastLogin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[params.ID] = u
	return u, true, nil
}

func (s *Store) ListMemberships(_ context.Context, userID uuid.UUID) ([]storage.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	out := append([]storage.Membership(nil), s.memberships[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetMembership(_ context.Context, userID, orgID uuid.UUID) (storage.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.Membership{}, err
	}
	for _, m := range s.memberships[userID] {
		if m.OrgID == orgID {
			return m, nil
		}
	}
	return storage.Membership{}, storage.ErrNotFound
}

func (s *Store) CreateMembership(_ context.Context, m storage.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	for _, existing := range s.memberships[m.UserID] {
		if existing.OrgID == m.OrgID {
			return nil
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.memberships[m.UserID] = append(s.memberships[m.UserID], m)
	return nil
}

func (s *Store) GetServiceAccountByClientID(_ context.Context, clientID string) (storage.ServiceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.ServiceAccount{}, err
	}
	sa, ok := s.serviceAccounts[clientID]
	if !ok || sa.Status != "active" {
		return storage.ServiceAccount{}, storage.ErrNotFound
	}
	return sa, nil
}

func (s *Store) GetAPIKeyByFingerprint(_ context.Context, fingerprint string) (storage.APIKey, storage.ServiceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.APIKey{}, storage.ServiceAccount{}, err
	}
	k, ok := s.apiKeys[fingerprint]
	if !ok {
		return storage.APIKey{}, storage.ServiceAccount{}, storage.ErrNotFound
	}
	for _, sa := range s.serviceAccounts {
		if sa.ID == k.ServiceAccountID {
			return k, sa, nil
		}
	}
	return storage.APIKey{}, storage.ServiceAccount{}, storage.ErrNotFound
}

func (s *Store) TouchAPIKey(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, k := range s.apiKeys {
		if k.ID == id {
			k.LastUsedAt = &usedAt
			s.apiKeys[fp] = k
		}
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, params storage.CreateSessionParams) (storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.Session{}, err
	}
	now := time.Now().UTC()
	sess := storage.Session{
		TokenHash:      params.TokenHash,
		UserID:         params.UserID,
		Email:          params.Email,
		DisplayName:    params.DisplayName,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      params.ExpiresAt,
		IPAddress:      params.IPAddress,
		UserAgent:      params.UserAgent,
	}
	s.sessions[params.TokenHash] = sess
	return sess, nil
}

func (s *Store) GetSession(_ context.Context, tokenHash string) (storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return storage.Session{}, err
	}
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return storage.Session{}, storage.ErrNotFound
	}
	return sess, nil
}

func (s *Store) TouchSession(_ context.Context, tokenHash string, activityAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[tokenHash]; ok {
		sess.LastActivityAt = activityAt
		s.sessions[tokenHash] = sess
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) ListSessionsByUser(_ context.Context, userID uuid.UUID) ([]storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	var out []storage.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (s *Store) RevokeSessionsForUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			t := revokedAt
			sess.RevokedAt = &t
			s.sessions[hash] = sess
		}
	}
	return nil
}

func (s *Store) GetProjectOrg(_ context.Context, projectID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return uuid.Nil, false, err
	}
	orgID, ok := s.projectOrgs[projectID]
	return orgID, ok, nil
}

func (s *Store) GetDocumentOrg(_ context.Context, documentID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return uuid.Nil, false, err
	}
	projectID, ok := s.documentProj[documentID]
	if !ok {
		return uuid.Nil, false, nil
	}
	orgID, ok := s.projectOrgs[projectID]
	return orgID, ok, nil
}

func (s *Store) GetSearchHistoryOrg(_ context.Context, searchID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return uuid.Nil, false, err
	}
	projectID, ok := s.searchProj[searchID]
	if !ok {
		return uuid.Nil, false, nil
	}
	orgID, ok := s.projectOrgs[projectID]
	return orgID, ok, nil
}

func (s *Store) GetCitationMatchOrg(_ context.Context, matchID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return uuid.Nil, false, err
	}
	searchID, ok := s.matchSearch[matchID]
	if !ok {
		return uuid.Nil, false, nil
	}
	projectID, ok := s.searchProj[searchID]
	if !ok {
		return uuid.Nil, false, nil
	}
	orgID, ok := s.projectOrgs[projectID]
	return orgID, ok, nil
}
