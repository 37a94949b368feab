package verification

import (
	"context"
	"errors"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification/models"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

func getMatchError() error {
	return dErrors.New(dErrors.CodeNotFound, "no verification found").WithMethod(methodGet)
}

// GetVerificationForUser returns the user's most recent verification. An
// organization filter rejects records from other organizations; activeOnly
// rejects records whose eligibility window has closed.
func (s *Service) GetVerificationForUser(ctx context.Context, userID int64, organizationID *int64, activeOnly bool) (*models.ForUser, error) {
	record, err := s.store.GetEligibilityVerificationRecordForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, getMatchError()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get verification").WithMethod(methodGet)
	}
	if organizationID != nil && record.OrganizationID != *organizationID {
		return nil, getMatchError()
	}
	if activeOnly && (record.DeactivatedAt != nil || !record.IsRecordActive(requestcontext.Now(ctx))) {
		return nil, getMatchError()
	}
	return record, nil
}

// GetAllVerificationsForUser returns the user's verifications, newest
// first, optionally filtered by organization set and eligibility activity.
func (s *Service) GetAllVerificationsForUser(ctx context.Context, userID int64, organizationIDs []int64, activeOnly bool) ([]*models.ForUser, error) {
	records, err := s.store.GetAllEligibilityVerificationRecordsForUser(ctx, userID, organizationIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list verifications").WithMethod(methodGet)
	}
	if activeOnly {
		now := requestcontext.Now(ctx)
		kept := records[:0]
		for _, r := range records {
			if r.DeactivatedAt == nil && r.IsRecordActive(now) {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	if len(records) == 0 {
		return nil, getMatchError()
	}
	return records, nil
}

// GetVerificationKeyForUser resolves the member pointers behind the user's
// preferred verification.
func (s *Service) GetVerificationKeyForUser(ctx context.Context, userID int64) (*models.VerificationKey, error) {
	key, err := s.store.GetVerificationKeyForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, getMatchError()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get verification key").WithMethod(methodGet)
	}
	return key, nil
}

// GetEligibilityMemberIDForUserAndOrg returns the member id claimed by the
// user's active verification in the organization.
func (s *Service) GetEligibilityMemberIDForUserAndOrg(ctx context.Context, userID, organizationID int64) (*int64, error) {
	id, err := s.store.GetEligibilityMemberIDForUserAndOrg(ctx, userID, organizationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, getMatchError()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get eligibility member id").WithMethod(methodGet)
	}
	return id, nil
}

// GetWalletEnablementForUser resolves the user's verified member and
// returns its wallet enablement.
func (s *Service) GetWalletEnablementForUser(ctx context.Context, userID int64) (*membermodels.WalletEnablement, error) {
	key, err := s.store.GetVerificationKeyForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, getMatchError()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get verification key").WithMethod(methodGet)
	}
	if key.MemberID == nil {
		return nil, getMatchError()
	}
	enablement, err := s.members.GetWalletEnablement(ctx, *key.MemberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, getMatchError()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get wallet enablement").WithMethod(methodGet)
	}
	return enablement, nil
}

// GetVerificationAttemptsForMember splits the member's audited attempts
// into successful and failed.
func (s *Service) GetVerificationAttemptsForMember(ctx context.Context, memberID int64) (successful, failed []*models.VerificationAttempt, err error) {
	attempts, err := s.store.GetVerificationAttemptsForMember(ctx, memberID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "list verification attempts").WithMethod(methodGet)
	}
	for _, a := range attempts {
		if a.SuccessfulVerification {
			successful = append(successful, a)
		} else {
			failed = append(failed, a)
		}
	}
	return successful, failed, nil
}

// DeactivateVerificationForUser deactivates a verification the user owns.
// Dual-written verifications cascade to the v2 row; a write-v2 organization
// whose verification never got a v2 pointer is a data bug and the
// deactivation is refused.
func (s *Service) DeactivateVerificationForUser(ctx context.Context, verificationID, userID int64) (_ *models.Verification, err error) {
	ctx, span := s.tracer.Start(ctx, "DeactivateVerificationForUser")
	defer span.End()
	defer func() {
		outcome := "deactivated"
		if err != nil {
			outcome = "error"
		}
		s.metrics.IncrementDeactivation(outcome)
	}()

	existing, err := s.store.GetVerification(ctx, verificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification not found").WithMethod(methodDeactivate)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deactivate verification").WithMethod(methodDeactivate)
	}
	if existing.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "verification not found").WithMethod(methodDeactivate)
	}
	if !existing.IsActive() {
		return nil, dErrors.New(dErrors.CodeInternal, "verification is already deactivated").WithMethod(methodDeactivate)
	}
	if s.policy.IsWriteV2Enabled(ctx, existing.OrganizationID) && existing.Verification2ID == nil {
		return nil, dErrors.New(dErrors.CodeInternal,
			"verification has no synchronized counterpart to deactivate").WithMethod(methodDeactivate)
	}

	deactivated, err := s.store.DeactivateVerification(ctx, verificationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deactivate verification").WithMethod(methodDeactivate)
	}
	if existing.Verification2ID != nil {
		if err := s.store.DeactivateVerification2(ctx, *existing.Verification2ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deactivate verification_2").WithMethod(methodDeactivate)
		}
	}
	return deactivated, nil
}
