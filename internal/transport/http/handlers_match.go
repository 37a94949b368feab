package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"eligibility/internal/match"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/httputil"
	"eligibility/pkg/requestcontext"
)

// urlInt64 parses a chi URL parameter as a decimal integer.
func urlInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, dErrors.Validation("invalid "+name, dErrors.FieldViolation{Field: name, Value: raw})
	}
	return id, nil
}

func (h *Handler) handleGetMemberByID(w http.ResponseWriter, r *http.Request) {
	id, err := urlInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.GetByMemberID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type standardRequest struct {
	DateOfBirth string `json:"date_of_birth"`
	Email       string `json:"email"`
}

func (h *Handler) handleCheckStandard(w http.ResponseWriter, r *http.Request) {
	var req standardRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckStandardEligibility(r.Context(), req.DateOfBirth, req.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type alternateRequest struct {
	DateOfBirth  string `json:"date_of_birth"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	WorkState    string `json:"work_state,omitempty"`
	UniqueCorpID string `json:"unique_corp_id,omitempty"`
}

func (h *Handler) handleCheckAlternate(w http.ResponseWriter, r *http.Request) {
	var req alternateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckAlternateEligibility(r.Context(), match.AlternateParams{
		DateOfBirth:  req.DateOfBirth,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		WorkState:    req.WorkState,
		UniqueCorpID: req.UniqueCorpID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type clientSpecificRequest struct {
	IsEmployee           bool   `json:"is_employee"`
	OrganizationID       int64  `json:"organization_id"`
	UniqueCorpID         string `json:"unique_corp_id"`
	DateOfBirth          string `json:"date_of_birth,omitempty"`
	DependentDateOfBirth string `json:"dependent_date_of_birth,omitempty"`
}

func (h *Handler) handleCheckClientSpecific(w http.ResponseWriter, r *http.Request) {
	var req clientSpecificRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckClientSpecificEligibility(r.Context(), match.ClientSpecificParams{
		IsEmployee:           req.IsEmployee,
		OrganizationID:       req.OrganizationID,
		UniqueCorpID:         req.UniqueCorpID,
		DateOfBirth:          req.DateOfBirth,
		DependentDateOfBirth: req.DependentDateOfBirth,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type noDOBRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handler) handleCheckNoDOB(w http.ResponseWriter, r *http.Request) {
	var req noDOBRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckNoDOBEligibility(r.Context(), req.Email, req.FirstName, req.LastName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type basicRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

func (h *Handler) handleCheckBasic(w http.ResponseWriter, r *http.Request) {
	var req basicRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckBasicEligibility(r.Context(), req.FirstName, req.LastName, req.DateOfBirth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type healthPlanRequest struct {
	SubscriberID string `json:"subscriber_id"`
	DateOfBirth  string `json:"date_of_birth"`
}

func (h *Handler) handleCheckHealthPlan(w http.ResponseWriter, r *http.Request) {
	var req healthPlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.CheckHealthPlanEligibility(r.Context(), req.SubscriberID, req.DateOfBirth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type overeligibilityRequest struct {
	DateOfBirth  string `json:"date_of_birth"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	UserID       int64  `json:"user_id,omitempty"`
	Email        string `json:"email,omitempty"`
	WorkState    string `json:"work_state,omitempty"`
	UniqueCorpID string `json:"unique_corp_id,omitempty"`
}

func (h *Handler) handleCheckOvereligibility(w http.ResponseWriter, r *http.Request) {
	var req overeligibilityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = requestcontext.UserID(r.Context())
	}
	resp, err := h.match.CheckOvereligibility(r.Context(), match.OvereligibilityParams{
		DateOfBirth:  req.DateOfBirth,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		UserID:       userID,
		Email:        req.Email,
		WorkState:    req.WorkState,
		UniqueCorpID: req.UniqueCorpID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetWalletEnablement(w http.ResponseWriter, r *http.Request) {
	memberID, err := urlInt64(r, "member_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.match.GetWalletEnablement(r.Context(), memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOtherUserIDsInFamily(w http.ResponseWriter, r *http.Request) {
	userID, err := urlInt64(r, "user_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := h.match.GetOtherUserIDsInFamily(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]int64{"user_ids": ids})
}

type preEligibilityRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

func (h *Handler) handleGetMembersByNameAndDOB(w http.ResponseWriter, r *http.Request) {
	var req preEligibilityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.pre.GetMembersByNameAndDateOfBirth(r.Context(), req.FirstName, req.LastName, req.DateOfBirth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}
