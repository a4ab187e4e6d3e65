// Package resolvers maps route URL parameters to owning orgs for the org
// isolation guard.
//
// Purpose:
//
//	Each resolver is a closure over the store that extracts a resource ID from
//	the chi route context and looks up the org that owns it. Malformed and
//	unknown IDs both report "not found" so the guard returns 404 without
//	leaking whether the resource exists.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: URL parameter extraction
//   - github.com/google/uuid: ID parsing
//   - internal/storage: Ownership lookups
package resolvers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

type orgLookup func(r *http.Request, id uuid.UUID) (uuid.UUID, bool, error)

func byParam(param string, lookup orgLookup) pipeline.OrgResolver {
	return func(r *http.Request) (uuid.UUID, bool, error) {
		id, err := uuid.Parse(chi.URLParam(r, param))
		if err != nil {
			return uuid.Nil, false, nil
		}
		return lookup(r, id)
	}
}

// Project resolves {projectID} to the org owning the project.
func Project(store storage.Store) pipeline.OrgResolver {
	return byParam("projectID", func(r *http.Request, id uuid.UUID) (uuid.UUID, bool, error) {
		return store.GetProjectOrg(r.Context(), id)
	})
}

// Document resolves {documentID} through its project to the owning org.
func Document(store storage.Store) pipeline.OrgResolver {
	return byParam("documentID", func(r *http.Request, id uuid.UUID) (uuid.UUID, bool, error) {
		return store.GetDocumentOrg(r.Context(), id)
	})
}

// SearchHistory resolves {searchID} to the org the search was run in.
func SearchHistory(store storage.Store) pipeline.OrgResolver {
	return byParam("searchID", func(r *http.Request, id uuid.UUID) (uuid.UUID, bool, error) {
		return store.GetSearchHistoryOrg(r.Context(), id)
	})
}

// CitationMatch resolves {matchID} through search history and project to the
// owning org.
func CitationMatch(store storage.Store) pipeline.OrgResolver {
	return byParam("matchID", func(r *http.Request, id uuid.UUID) (uuid.UUID, bool, error) {
		return store.GetCitationMatchOrg(r.Context(), id)
	})
}
