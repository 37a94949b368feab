package httptransport

import (
	"net/http"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification"
	"eligibility/internal/verification/models"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/httputil"
	"eligibility/pkg/requestcontext"
)

// resolveUserID prefers an explicit user id from the request body and falls
// back to the authenticated caller.
func resolveUserID(r *http.Request, explicit int64) int64 {
	if explicit != 0 {
		return explicit
	}
	return requestcontext.UserID(r.Context())
}

type getVerificationRequest struct {
	UserID                  int64  `json:"user_id,omitempty"`
	OrganizationID          *int64 `json:"organization_id,omitempty"`
	ActiveVerificationsOnly bool   `json:"active_verifications_only,omitempty"`
}

func (h *Handler) handleGetVerificationForUser(w http.ResponseWriter, r *http.Request) {
	var req getVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.verification.GetVerificationForUser(r.Context(), resolveUserID(r, req.UserID), req.OrganizationID, req.ActiveVerificationsOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type getAllVerificationsRequest struct {
	UserID                  int64   `json:"user_id,omitempty"`
	OrganizationIDs         []int64 `json:"organization_ids,omitempty"`
	ActiveVerificationsOnly bool    `json:"active_verifications_only,omitempty"`
}

func (h *Handler) handleGetAllVerificationsForUser(w http.ResponseWriter, r *http.Request) {
	var req getAllVerificationsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.verification.GetAllVerificationsForUser(r.Context(), resolveUserID(r, req.UserID), req.OrganizationIDs, req.ActiveVerificationsOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type createVerificationRequest struct {
	UserID              int64                   `json:"user_id,omitempty"`
	OrganizationID      int64                   `json:"organization_id"`
	VerificationType    string                  `json:"verification_type"`
	EligibilityMemberID *int64                  `json:"eligibility_member_id,omitempty"`
	FirstName           string                  `json:"first_name,omitempty"`
	LastName            string                  `json:"last_name,omitempty"`
	Email               string                  `json:"email,omitempty"`
	DateOfBirth         string                  `json:"date_of_birth,omitempty"`
	UniqueCorpID        string                  `json:"unique_corp_id,omitempty"`
	DependentID         string                  `json:"dependent_id,omitempty"`
	WorkState           string                  `json:"work_state,omitempty"`
	VerifiedAt          string                  `json:"verified_at,omitempty"`
	VerificationSession string                  `json:"verification_session,omitempty"`
	AdditionalFields    membermodels.Attributes `json:"additional_fields,omitempty"`
}

func (r createVerificationRequest) toParams(userID int64) verification.CreateParams {
	return verification.CreateParams{
		UserID:              userID,
		OrganizationID:      r.OrganizationID,
		VerificationType:    r.VerificationType,
		EligibilityMemberID: r.EligibilityMemberID,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Email:               r.Email,
		DateOfBirth:         r.DateOfBirth,
		UniqueCorpID:        r.UniqueCorpID,
		DependentID:         r.DependentID,
		WorkState:           r.WorkState,
		VerifiedAt:          r.VerifiedAt,
		VerificationSession: r.VerificationSession,
		AdditionalFields:    r.AdditionalFields,
	}
}

func (h *Handler) handleCreateVerificationForUser(w http.ResponseWriter, r *http.Request) {
	var req createVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.verification.CreateVerificationForUser(r.Context(), req.toParams(resolveUserID(r, req.UserID)))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

type createMultipleVerificationsRequest struct {
	UserID        int64                       `json:"user_id,omitempty"`
	Verifications []createVerificationRequest `json:"verifications"`
}

func (h *Handler) handleCreateMultipleVerificationsForUser(w http.ResponseWriter, r *http.Request) {
	var req createMultipleVerificationsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID := resolveUserID(r, req.UserID)
	items := make([]verification.CreateParams, 0, len(req.Verifications))
	for _, v := range req.Verifications {
		items = append(items, v.toParams(userID))
	}
	resp, err := h.verification.CreateMultipleVerificationsForUser(r.Context(), userID, items)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

type createFailedVerificationRequest struct {
	UserID              *int64                  `json:"user_id,omitempty"`
	OrganizationID      int64                   `json:"organization_id"`
	VerificationType    string                  `json:"verification_type"`
	EligibilityMemberID *int64                  `json:"eligibility_member_id,omitempty"`
	FirstName           string                  `json:"first_name,omitempty"`
	LastName            string                  `json:"last_name,omitempty"`
	Email               string                  `json:"email,omitempty"`
	DateOfBirth         string                  `json:"date_of_birth,omitempty"`
	UniqueCorpID        string                  `json:"unique_corp_id,omitempty"`
	DependentID         string                  `json:"dependent_id,omitempty"`
	WorkState           string                  `json:"work_state,omitempty"`
	PolicyUsed          membermodels.Attributes `json:"policy_used,omitempty"`
}

func (h *Handler) handleCreateFailedVerification(w http.ResponseWriter, r *http.Request) {
	var req createFailedVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	err := h.verification.CreateFailedVerification(r.Context(), verification.FailedVerificationParams{
		UserID:              req.UserID,
		OrganizationID:      req.OrganizationID,
		VerificationType:    req.VerificationType,
		EligibilityMemberID: req.EligibilityMemberID,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Email:               req.Email,
		DateOfBirth:         req.DateOfBirth,
		UniqueCorpID:        req.UniqueCorpID,
		DependentID:         req.DependentID,
		WorkState:           req.WorkState,
		PolicyUsed:          req.PolicyUsed,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type deactivateVerificationRequest struct {
	VerificationID int64 `json:"verification_id"`
	UserID         int64 `json:"user_id,omitempty"`
}

func (h *Handler) handleDeactivateVerificationForUser(w http.ResponseWriter, r *http.Request) {
	var req deactivateVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.VerificationID == 0 {
		httputil.WriteError(w, dErrors.Validation("verification_id is required",
			dErrors.FieldViolation{Field: "verification_id", Value: "0"}))
		return
	}
	resp, err := h.verification.DeactivateVerificationForUser(r.Context(), req.VerificationID, resolveUserID(r, req.UserID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetWalletEnablementForUser(w http.ResponseWriter, r *http.Request) {
	resp, err := h.verification.GetWalletEnablementForUser(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type verificationAttemptsResponse struct {
	Successful []*models.VerificationAttempt `json:"successful"`
	Failed     []*models.VerificationAttempt `json:"failed"`
}

func (h *Handler) handleGetVerificationAttempts(w http.ResponseWriter, r *http.Request) {
	memberID, err := urlInt64(r, "member_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	successful, failed, err := h.verification.GetVerificationAttemptsForMember(r.Context(), memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verificationAttemptsResponse{
		Successful: successful,
		Failed:     failed,
	})
}
