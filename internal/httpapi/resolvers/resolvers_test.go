package resolvers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/caseflow-api/internal/storage/memory"
)

func requestWithParam(param, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, value)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestProjectResolver(t *testing.T) {
	store := memory.NewStore()
	orgID := uuid.New()
	projectID := store.AddProject(orgID)

	resolve := Project(store)

	got, found, err := resolve(requestWithParam("projectID", projectID.String()))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, orgID, got)

	_, found, err = resolve(requestWithParam("projectID", uuid.NewString()))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMalformedIDReportsNotFound(t *testing.T) {
	store := memory.NewStore()
	resolve := Project(store)

	_, found, err := resolve(requestWithParam("projectID", "not-a-uuid"))
	require.NoError(t, err, "malformed IDs must not surface as errors")
	assert.False(t, found)
}

func TestChainedResolvers(t *testing.T) {
	store := memory.NewStore()
	orgID := uuid.New()
	projectID := store.AddProject(orgID)
	documentID := store.AddDocument(projectID)
	searchID := store.AddSearch(projectID)
	matchID := store.AddCitationMatch(searchID)

	cases := []struct {
		name    string
		resolve func(*http.Request) (uuid.UUID, bool, error)
		param   string
		id      uuid.UUID
	}{
		{"document", Document(store), "documentID", documentID},
		{"search history", SearchHistory(store), "searchID", searchID},
		{"citation match", CitationMatch(store), "matchID", matchID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found, err := tc.resolve(requestWithParam(tc.param, tc.id.String()))
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, orgID, got, "ownership resolves through the parent chain")
		})
	}
}
