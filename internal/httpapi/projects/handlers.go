// Package projects wires the org-scoped drafting routes through the security
// presets. Handlers here are deliberately thin: the interesting behavior is
// the preset composition, and the data logic lives behind other services.
package projects

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/pipeline"
	"github.com/otherjamesbrown/caseflow-api/internal/httpapi/resolvers"
	"github.com/otherjamesbrown/caseflow-api/internal/limiter"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// Handlers holds the dependencies for the project and document routes.
type Handlers struct {
	Deps pipeline.Deps
}

// Routes registers the org-scoped routes. Each registration names its preset
// and per-route options; composition beyond that is the pipeline's business.
func (h *Handlers) Routes(r chi.Router) {
	store := h.Deps.Store
	project := resolvers.Project(store)
	document := resolvers.Document(store)
	citation := resolvers.CitationMatch(store)

	r.Method(http.MethodGet, "/projects/{projectID}", h.Deps.OrgProtected(project, h.getProject,
		pipeline.WithRateCategory(limiter.CategoryReadOnly),
	))
	r.Method(http.MethodGet, "/projects/{projectID}/status", h.Deps.OrgProtected(project, h.projectStatus,
		pipeline.WithRateCategory(limiter.CategoryPolling),
	))
	r.Method(http.MethodPut, "/projects/{projectID}", h.Deps.OrgProtected(project, h.updateProject,
		pipeline.WithRoles(storage.RoleAdmin),
		pipeline.WithBodySchema(func() any { return &updateProjectRequest{} }),
	))
	r.Method(http.MethodDelete, "/projects/{projectID}", h.Deps.OrgAdmin(project, h.deleteProject))

	// Reads are open to every member; deleting a match is an admin action.
	citations := h.Deps.OrgProtected(citation, h.citationMatch,
		pipeline.WithMethodRoles(map[string][]string{
			http.MethodDelete: {storage.RoleAdmin},
		}),
	)
	r.Method(http.MethodGet, "/citations/{matchID}", citations)
	r.Method(http.MethodDelete, "/citations/{matchID}", citations)

	// Fetched by the in-page viewer, which sends no org hint header.
	r.Method(http.MethodGet, "/documents/{documentID}/file", h.Deps.BrowserAccessible(document, h.downloadDocument))
}

type updateProjectRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=200"`
	Status string `json:"status" validate:"omitempty,oneof=draft active archived"`
}

type projectResponse struct {
	ProjectID string `json:"project_id"`
	OrgID     string `json:"org_id"`
}

func (h *Handlers) getProject(w http.ResponseWriter, r *http.Request) {
	rc := pipeline.FromContext(r.Context())
	pipeline.WriteJSON(w, http.StatusOK, projectResponse{
		ProjectID: chi.URLParam(r, "projectID"),
		OrgID:     rc.ResolvedOrg.String(),
	})
}

func (h *Handlers) projectStatus(w http.ResponseWriter, r *http.Request) {
	pipeline.WriteJSON(w, http.StatusOK, map[string]string{
		"project_id": chi.URLParam(r, "projectID"),
		"status":     "ready",
	})
}

func (h *Handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	input := pipeline.GetInput(r.Context()).(*updateProjectRequest)
	pipeline.WriteJSON(w, http.StatusOK, map[string]string{
		"project_id": chi.URLParam(r, "projectID"),
		"name":       input.Name,
	})
}

func (h *Handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	pipeline.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) citationMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		pipeline.WriteJSON(w, http.StatusNoContent, nil)
		return
	}
	rc := pipeline.FromContext(r.Context())
	pipeline.WriteJSON(w, http.StatusOK, map[string]string{
		"match_id": chi.URLParam(r, "matchID"),
		"org_id":   rc.ResolvedOrg.String(),
	})
}

func (h *Handlers) downloadDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment")
	w.WriteHeader(http.StatusOK)
}
