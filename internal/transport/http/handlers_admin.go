package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"eligibility/internal/admin"
	"eligibility/pkg/platform/httputil"
)

type createTestMembersRequest struct {
	Count       int    `json:"count"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	EmailDomain string `json:"email_domain,omitempty"`
}

func (h *Handler) handleCreateTestMembers(w http.ResponseWriter, r *http.Request) {
	organizationID, err := urlInt64(r, "organization_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req createTestMembersRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.admin.CreateTestMembers(r.Context(), admin.CreateTestMembersParams{
		OrganizationID: organizationID,
		Count:          req.Count,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		EmailDomain:    req.EmailDomain,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, records)
}

func (h *Handler) handleGetSubPopulationID(w http.ResponseWriter, r *http.Request) {
	userID, err := urlInt64(r, "user_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	organizationID, err := urlInt64(r, "org_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.population.GetSubPopulationID(r.Context(), userID, organizationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"sub_population_id": id})
}

func (h *Handler) handleGetEligibleFeatures(w http.ResponseWriter, r *http.Request) {
	subPopulationID, err := urlInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	featureType := chi.URLParam(r, "t")
	features, err := h.population.GetEligibleFeatures(r.Context(), subPopulationID, featureType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"features": features})
}
