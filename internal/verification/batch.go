package verification

import (
	"context"
	"errors"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification/models"
	"eligibility/internal/verification/store"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

// CreateMultipleVerificationsForUser writes one verification triple per
// usable record. Records already claimed by another verification are
// skipped; if every record is claimed the call fails. Each store's batch
// is all-or-nothing.
func (s *Service) CreateMultipleVerificationsForUser(ctx context.Context, userID int64, items []CreateParams) (_ []*models.ForUser, err error) {
	ctx, span := s.tracer.Start(ctx, "CreateMultipleVerificationsForUser")
	defer span.End()

	if s.policy.IsWriteDisabled(ctx) {
		return nil, dErrors.New(dErrors.CodeInternal, "verification writes are disabled").WithMethod(methodCreateBatch)
	}
	if len(items) == 0 {
		return nil, dErrors.Validation("no verification records supplied").WithMethod(methodCreateBatch)
	}
	s.metrics.ObserveBatchSize(len(items))

	type batchEntry struct {
		params    CreateParams
		validated *validatedCreate
	}
	var usable []batchEntry
	claimed := 0
	for i := range items {
		p := items[i]
		p.UserID = userID
		validated, err := s.validate(ctx, p)
		if err != nil {
			return nil, err
		}
		if p.EligibilityMemberID != nil {
			ok, err := s.VerifyEligibilityRecordUsable(ctx, *p.EligibilityMemberID, p.OrganizationID)
			if err != nil {
				return nil, err
			}
			if !ok {
				claimed++
				s.logger.InfoContext(ctx, "skipping claimed eligibility record",
					"user_id", userID,
					"organization_id", p.OrganizationID,
					"eligibility_member_id", *p.EligibilityMemberID)
				continue
			}
		}
		usable = append(usable, batchEntry{params: p, validated: validated})
	}
	if len(usable) == 0 && claimed > 0 {
		return nil, claimedError()
	}

	var v1Batch, v2Batch []*store.BatchRecord
	v2Members := make(map[*store.BatchRecord]*membermodels.MemberResponse)
	for _, entry := range usable {
		record := &store.BatchRecord{
			UserID:              userID,
			OrganizationID:      entry.params.OrganizationID,
			VerificationType:    entry.validated.verificationType,
			EligibilityMemberID: entry.params.EligibilityMemberID,
			Demographics:        entry.validated.demographics,
			VerifiedAt:          entry.validated.verifiedAt,
			VerificationSession: entry.validated.session,
			AdditionalFields:    entry.params.AdditionalFields,
		}
		if s.policy.IsWriteV2Enabled(ctx, entry.params.OrganizationID) {
			resp, err := s.prepareV2BatchRecord(ctx, record)
			if err != nil {
				return nil, err
			}
			v2Members[record] = resp
			v2Batch = append(v2Batch, record)
		} else {
			v1Batch = append(v1Batch, record)
		}
	}

	if len(v1Batch) > 0 {
		if err := s.writeV1Batch(ctx, v1Batch); err != nil {
			return nil, err
		}
	}
	if len(v2Batch) > 0 {
		if err := s.writeV2Batch(ctx, v2Batch, v2Members); err != nil {
			return nil, err
		}
	}
	return s.GetAllVerificationsForUser(ctx, userID, nil, false)
}

// prepareV2BatchRecord resolves the v2 member behind a batch record and
// applies the v2 create gate.
func (s *Service) prepareV2BatchRecord(ctx context.Context, record *store.BatchRecord) (*membermodels.MemberResponse, error) {
	if record.EligibilityMemberID == nil {
		return nil, dErrors.New(dErrors.CodeInternal,
			"cannot create a dual-written verification without an eligibility record").WithMethod(methodCreateBatch)
	}
	resp, err := s.members.GetByMemberID(ctx, *record.EligibilityMemberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load member for verification").WithMethod(methodCreateBatch)
	}
	if resp.Member2ID == nil || resp.Version == nil {
		return nil, dErrors.New(dErrors.CodeInternal,
			"member has no synchronized counterpart").WithMethod(methodCreateBatch)
	}
	existing, err := s.store.GetVerification2ForMember(ctx, *resp.Member2ID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim check").WithMethod(methodCreateBatch)
	}
	cfg, err := s.policy.Get(ctx, record.OrganizationID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load organization").WithMethod(methodCreateBatch)
	}
	if !s.canCreateVerification2(existing, cfg, resp) {
		return nil, dErrors.New(dErrors.CodeInternal,
			"organization policy rejects another verification for this member").WithMethod(methodCreateBatch)
	}
	return resp, nil
}

func (s *Service) writeV1Batch(ctx context.Context, batch []*store.BatchRecord) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateMultipleVerifications(ctx, batch); err != nil {
			return err
		}
		if err := s.store.CreateMultipleVerificationAttempts(ctx, batch); err != nil {
			return err
		}
		return s.store.CreateMultipleMemberVerifications(ctx, linkable(batch))
	})
	if err != nil {
		return batchCreateError(err)
	}
	return nil
}

// writeV2Batch writes each record's v2 row, then the v1 row pointing at
// it, then the shared attempt and link batches, all in one transaction.
func (s *Service) writeV2Batch(ctx context.Context, batch []*store.BatchRecord, members map[*store.BatchRecord]*membermodels.MemberResponse) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		for _, record := range batch {
			resp := members[record]
			v2, err := s.store.CreateVerification2(ctx, store.CreateVerification2Params{
				UserID:              record.UserID,
				OrganizationID:      record.OrganizationID,
				VerificationType:    record.VerificationType,
				MemberID:            *resp.Member2ID,
				MemberVersion:       *resp.Version,
				Demographics:        record.Demographics,
				VerifiedAt:          record.VerifiedAt,
				VerificationSession: record.VerificationSession,
				AdditionalFields:    record.AdditionalFields,
			})
			if err != nil {
				return err
			}
			v1, err := s.store.CreateVerification(ctx, store.CreateVerificationParams{
				UserID:              record.UserID,
				OrganizationID:      record.OrganizationID,
				VerificationType:    record.VerificationType,
				Demographics:        record.Demographics,
				VerifiedAt:          record.VerifiedAt,
				VerificationSession: record.VerificationSession,
				AdditionalFields:    record.AdditionalFields,
				Verification2ID:     &v2.ID,
			})
			if err != nil {
				return err
			}
			record.VerificationID = &v1.ID
		}
		if err := s.store.CreateMultipleVerificationAttempts(ctx, batch); err != nil {
			return err
		}
		return s.store.CreateMultipleMemberVerifications(ctx, linkable(batch))
	})
	if err != nil {
		return batchCreateError(err)
	}
	return nil
}

// linkable keeps records that resolved both a member and a verification,
// the precondition for a member link row.
func linkable(batch []*store.BatchRecord) []*store.BatchRecord {
	var out []*store.BatchRecord
	for _, r := range batch {
		if r.EligibilityMemberID != nil && r.VerificationID != nil {
			out = append(out, r)
		}
	}
	return out
}

func batchCreateError(err error) error {
	if store.IsUniqueViolation(err) {
		return dErrors.Wrap(err, dErrors.CodeAlreadyExists,
			"eligibility record has already been claimed").WithMethod(methodCreateBatch)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "create verifications").WithMethod(methodCreateBatch)
}

// FailedVerificationParams records an unsuccessful attempt.
type FailedVerificationParams struct {
	UserID              *int64
	OrganizationID      int64
	VerificationType    string
	EligibilityMemberID *int64
	FirstName           string
	LastName            string
	Email               string
	DateOfBirth         string
	UniqueCorpID        string
	DependentID         string
	WorkState           string
	PolicyUsed          membermodels.Attributes
}

// CreateFailedVerification audits a rejected attempt. No verification row
// is written, so there is nothing to dual-write beyond the attempt itself.
func (s *Service) CreateFailedVerification(ctx context.Context, p FailedVerificationParams) error {
	ctx, span := s.tracer.Start(ctx, "CreateFailedVerification")
	defer span.End()

	vType, ok := models.NormalizeType(p.VerificationType)
	if !ok {
		return dErrors.Validation("unknown verification type",
			dErrors.FieldViolation{Field: "verification_type", Value: p.VerificationType}).WithMethod(methodCreate)
	}
	demographics := models.Demographics{
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		UniqueCorpID: p.UniqueCorpID,
		DependentID:  p.DependentID,
		WorkState:    p.WorkState,
	}
	if p.DateOfBirth != "" {
		dob, err := parseDate(p.DateOfBirth)
		if err != nil {
			return dErrors.Validation("invalid date of birth",
				dErrors.FieldViolation{Field: "date_of_birth", Value: p.DateOfBirth}).WithMethod(methodCreate)
		}
		demographics.DateOfBirth = &dob
	}

	attempt, err := s.store.CreateVerificationAttempt(ctx, store.CreateAttemptParams{
		UserID:           p.UserID,
		OrganizationID:   p.OrganizationID,
		VerificationType: vType,
		Demographics:     demographics,
		PolicyUsed:       p.PolicyUsed,
		VerifiedAt:       requestcontext.Now(ctx),
	})
	if err != nil {
		return createError(err)
	}
	if p.EligibilityMemberID != nil {
		if _, err := s.store.CreateMemberVerification(ctx, p.EligibilityMemberID, nil, &attempt.ID); err != nil {
			return createError(err)
		}
	}
	return nil
}
