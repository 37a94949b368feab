// Package verification writes and reads the verification triple: the
// verification row, its audit attempt, and the member link. Writes route
// between the v1 and v2 stores by organization flag; dual-written
// organizations land both rows atomically.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"eligibility/internal/member"
	membermodels "eligibility/internal/member/models"
	"eligibility/internal/orgpolicy"
	orgmodels "eligibility/internal/orgpolicy/models"
	"eligibility/internal/verification/metrics"
	"eligibility/internal/verification/models"
	"eligibility/internal/verification/store"
	dErrors "eligibility/pkg/domain-errors"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

const (
	methodCreate      = "create_verification"
	methodCreateBatch = "create_multiple_verifications"
	methodGet         = "get_verification"
	methodDeactivate  = "deactivate_verification"
)

// Service orchestrates verification writes against the member router and
// organization policy.
type Service struct {
	store   store.Store
	members *member.Router
	policy  *orgpolicy.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, members *member.Router, policy *orgpolicy.Service, opts ...Option) *Service {
	s := &Service{
		store:   st,
		members: members,
		policy:  policy,
		logger:  slog.Default(),
		tracer:  otel.Tracer("eligibility/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams is the boundary shape for a single create. Date and UUID
// fields arrive as strings and are parsed during validation.
type CreateParams struct {
	UserID              int64
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
	VerifiedAt          string
	VerificationSession string
	AdditionalFields    membermodels.Attributes
}

// validatedCreate is CreateParams after parsing; every downstream function
// operates on these typed values.
type validatedCreate struct {
	verificationType string
	demographics     models.Demographics
	verifiedAt       time.Time
	session          *string
}

func (s *Service) validate(ctx context.Context, p CreateParams) (*validatedCreate, error) {
	if p.UserID <= 0 {
		return nil, dErrors.Validation("user_id is required").WithMethod(methodCreate)
	}
	if p.OrganizationID <= 0 {
		return nil, dErrors.Validation("organization_id is required").WithMethod(methodCreate)
	}
	vType, ok := models.NormalizeType(p.VerificationType)
	if !ok {
		return nil, dErrors.Validation("unknown verification type",
			dErrors.FieldViolation{Field: "verification_type", Value: p.VerificationType}).WithMethod(methodCreate)
	}

	out := &validatedCreate{
		verificationType: vType,
		demographics: models.Demographics{
			FirstName:    strings.TrimSpace(p.FirstName),
			LastName:     strings.TrimSpace(p.LastName),
			Email:        strings.TrimSpace(p.Email),
			UniqueCorpID: p.UniqueCorpID,
			DependentID:  p.DependentID,
			WorkState:    p.WorkState,
		},
		verifiedAt: requestcontext.Now(ctx),
	}
	if p.DateOfBirth != "" {
		dob, err := parseDate(p.DateOfBirth)
		if err != nil {
			return nil, dErrors.Validation("invalid date of birth",
				dErrors.FieldViolation{Field: "date_of_birth", Value: p.DateOfBirth}).WithMethod(methodCreate)
		}
		out.demographics.DateOfBirth = &dob
	}
	if p.VerifiedAt != "" {
		at, err := parseDate(p.VerifiedAt)
		if err != nil {
			return nil, dErrors.Validation("invalid verified_at",
				dErrors.FieldViolation{Field: "verified_at", Value: p.VerifiedAt}).WithMethod(methodCreate)
		}
		out.verifiedAt = at
	}
	if p.VerificationSession != "" {
		parsed, err := uuid.Parse(p.VerificationSession)
		if err != nil {
			return nil, dErrors.Validation("invalid verification session",
				dErrors.FieldViolation{Field: "verification_session", Value: p.VerificationSession}).WithMethod(methodCreate)
		}
		session := parsed.String()
		out.session = &session
	}
	return out, nil
}

// CreateVerificationForUser writes the verification triple for one user
// and returns the hydrated record.
func (s *Service) CreateVerificationForUser(ctx context.Context, p CreateParams) (_ *models.ForUser, err error) {
	ctx, span := s.tracer.Start(ctx, "CreateVerificationForUser")
	defer span.End()

	if s.policy.IsWriteDisabled(ctx) {
		return nil, dErrors.New(dErrors.CodeInternal, "verification writes are disabled").WithMethod(methodCreate)
	}
	validated, err := s.validate(ctx, p)
	if err != nil {
		return nil, err
	}

	path := "v1"
	if s.policy.IsWriteV2Enabled(ctx, p.OrganizationID) {
		path = "v2"
	}
	start := time.Now()
	defer func() {
		s.metrics.IncrementCreate(path, createOutcome(err))
		s.metrics.ObserveCreateDuration(path, start)
	}()

	if path == "v2" {
		err = s.createV2(ctx, p, validated)
	} else {
		err = s.createV1(ctx, p, validated)
	}
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetEligibilityVerificationRecordForUser(ctx, p.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read back verification").WithMethod(methodCreate)
	}
	return record, nil
}

func createOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case dErrors.HasCode(err, dErrors.CodeAlreadyExists):
		return "claimed"
	case dErrors.HasCode(err, dErrors.CodeInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Service) createV1(ctx context.Context, p CreateParams, v *validatedCreate) error {
	if p.EligibilityMemberID != nil {
		usable, err := s.VerifyEligibilityRecordUsable(ctx, *p.EligibilityMemberID, p.OrganizationID)
		if err != nil {
			return err
		}
		if !usable {
			return claimedError()
		}
	}

	// The verification, its attempt, and the member link land together
	// or not at all.
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		created, err := s.store.CreateVerification(ctx, store.CreateVerificationParams{
			UserID:              p.UserID,
			OrganizationID:      p.OrganizationID,
			VerificationType:    v.verificationType,
			Demographics:        v.demographics,
			VerifiedAt:          v.verifiedAt,
			VerificationSession: v.session,
			AdditionalFields:    p.AdditionalFields,
		})
		if err != nil {
			return createError(err)
		}
		attempt, err := s.store.CreateVerificationAttempt(ctx, store.CreateAttemptParams{
			UserID:           &p.UserID,
			OrganizationID:   p.OrganizationID,
			VerificationType: v.verificationType,
			Demographics:     v.demographics,
			VerificationID:   &created.ID,
			VerifiedAt:       v.verifiedAt,
		})
		if err != nil {
			return createError(err)
		}
		if p.EligibilityMemberID != nil {
			if _, err := s.store.CreateMemberVerification(ctx, p.EligibilityMemberID, &created.ID, &attempt.ID); err != nil {
				if store.IsUniqueViolation(err) {
					return claimedError()
				}
				return createError(err)
			}
		}
		return nil
	})
}

func (s *Service) createV2(ctx context.Context, p CreateParams, v *validatedCreate) error {
	if p.EligibilityMemberID == nil {
		return dErrors.New(dErrors.CodeInternal,
			"cannot create a dual-written verification without an eligibility record").WithMethod(methodCreate)
	}
	memberResp, err := s.members.GetByMemberID(ctx, *p.EligibilityMemberID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load member for verification").WithMethod(methodCreate)
	}
	if memberResp.Member2ID == nil || memberResp.Version == nil {
		return dErrors.New(dErrors.CodeInternal,
			"member has no synchronized counterpart").WithMethod(methodCreate)
	}

	// The existing-verification, configuration, and claim lookups are
	// independent reads. A null v1 id means the record was never claimed
	// in the v1 store.
	var (
		existing *models.Verification2
		cfg      *orgmodels.Configuration
		usable   = true
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.store.GetVerification2ForMember(gctx, *memberResp.Member2ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		existing = found
		return nil
	})
	g.Go(func() error {
		loaded, err := s.policy.Get(gctx, p.OrganizationID)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	})
	g.Go(func() error {
		if memberResp.Member1ID == nil {
			return nil
		}
		ok, err := s.VerifyEligibilityRecordUsable(gctx, *memberResp.Member1ID, p.OrganizationID)
		if err != nil {
			return err
		}
		usable = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "prepare dual-written verification").WithMethod(methodCreate)
	}

	if !s.canCreateVerification2(existing, cfg, memberResp) {
		return dErrors.New(dErrors.CodeInternal,
			"organization policy rejects another verification for this member").WithMethod(methodCreate)
	}
	if !usable {
		return claimedError()
	}

	// Both verification rows, the attempt, and the member link share one
	// transaction; the dual write joins it through the context.
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		created, err := s.store.CreateVerificationDualWrite(ctx, store.DualWriteParams{
			V1: store.CreateVerificationParams{
				UserID:              p.UserID,
				OrganizationID:      p.OrganizationID,
				VerificationType:    v.verificationType,
				Demographics:        v.demographics,
				VerifiedAt:          v.verifiedAt,
				VerificationSession: v.session,
				AdditionalFields:    p.AdditionalFields,
			},
			V2: store.CreateVerification2Params{
				UserID:              p.UserID,
				OrganizationID:      p.OrganizationID,
				VerificationType:    v.verificationType,
				MemberID:            *memberResp.Member2ID,
				MemberVersion:       *memberResp.Version,
				Demographics:        v.demographics,
				VerifiedAt:          v.verifiedAt,
				VerificationSession: v.session,
				AdditionalFields:    p.AdditionalFields,
			},
		})
		if err != nil {
			return createError(err)
		}
		attempt, err := s.store.CreateVerificationAttempt(ctx, store.CreateAttemptParams{
			UserID:           &p.UserID,
			OrganizationID:   p.OrganizationID,
			VerificationType: v.verificationType,
			Demographics:     v.demographics,
			VerificationID:   &created.ID,
			VerifiedAt:       v.verifiedAt,
		})
		if err != nil {
			return createError(err)
		}
		memberID := memberResp.Member1ID
		if memberID == nil {
			memberID = p.EligibilityMemberID
		}
		if _, err := s.store.CreateMemberVerification(ctx, memberID, &created.ID, &attempt.ID); err != nil {
			if store.IsUniqueViolation(err) {
				return claimedError()
			}
			return createError(err)
		}
		return nil
	})
}

// canCreateVerification2 decides whether another v2 verification may be
// written for a member that may already carry one.
func (s *Service) canCreateVerification2(existing *models.Verification2, cfg *orgmodels.Configuration, memberResp *membermodels.MemberResponse) bool {
	if existing == nil {
		return true
	}
	if cfg == nil || cfg.EmployeeOnly {
		return false
	}
	if cfg.MedicalPlanOnly && !memberResp.Record.Bool("beneficiaries_enabled") {
		return false
	}
	return true
}

// VerifyEligibilityRecordUsable reports whether the member record may be
// claimed, or claimed again, by a new verification.
func (s *Service) VerifyEligibilityRecordUsable(ctx context.Context, eligibilityMemberID, organizationID int64) (bool, error) {
	var claimed bool
	if s.policy.IsWriteV2Enabled(ctx, organizationID) {
		resp, err := s.members.GetByMemberID(ctx, eligibilityMemberID)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "load member for claim check").WithMethod(methodCreate)
		}
		if resp.Member2ID != nil {
			_, err := s.store.GetVerification2ForMember(ctx, *resp.Member2ID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return false, dErrors.Wrap(err, dErrors.CodeInternal, "claim check").WithMethod(methodCreate)
			}
			claimed = err == nil
		}
	} else {
		_, err := s.store.GetVerificationForMember(ctx, eligibilityMemberID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "claim check").WithMethod(methodCreate)
		}
		claimed = err == nil
	}
	if !claimed {
		return true, nil
	}

	cfg, err := s.policy.Get(ctx, organizationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load organization for claim check").WithMethod(methodCreate)
	}
	if cfg.EmployeeOnly {
		return false, nil
	}
	if cfg.MedicalPlanOnly {
		rec, err := s.members.GetByMemberID(ctx, eligibilityMemberID)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "load member for claim check").WithMethod(methodCreate)
		}
		return rec.Record.Bool("beneficiaries_enabled"), nil
	}
	return true, nil
}

func claimedError() error {
	return dErrors.New(dErrors.CodeAlreadyExists,
		"eligibility record has already been claimed").WithMethod(methodCreate)
}

func createError(err error) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, "create verification").WithMethod(methodCreate)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}
