// Package admin holds test-only operational utilities. Everything here is
// gated away from production.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eligibility/internal/member/models"
	"eligibility/internal/orgpolicy"
	dErrors "eligibility/pkg/domain-errors"
)

const methodTestMembers = "create_test_members"

const maxTestMembers = 500

// MemberCreator is the single write the utility needs from the member
// store.
type MemberCreator interface {
	Create(ctx context.Context, rec *models.MemberRecord) (*models.MemberRecord, error)
}

// Service bulk-creates disposable member rows for manual testing.
type Service struct {
	members MemberCreator
	policy  *orgpolicy.Service
	nonProd bool
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(members MemberCreator, policy *orgpolicy.Service, nonProd bool, opts ...Option) *Service {
	s := &Service{members: members, policy: policy, nonProd: nonProd, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTestMembersParams carries optional demographic overrides; blank
// fields get generated defaults.
type CreateTestMembersParams struct {
	OrganizationID int64
	Count          int
	FirstName      string
	LastName       string
	EmailDomain    string
}

// CreateTestMembers inserts Count member rows for the organization, each
// effective from yesterday for a year.
func (s *Service) CreateTestMembers(ctx context.Context, p CreateTestMembersParams) ([]*models.MemberRecord, error) {
	if !s.nonProd {
		return nil, dErrors.New(dErrors.CodeUnimplemented,
			"test member creation is not available in production").WithMethod(methodTestMembers)
	}
	if s.policy.IsWriteDisabled(ctx) {
		return nil, dErrors.New(dErrors.CodeInternal, "member writes are disabled").WithMethod(methodTestMembers)
	}
	if p.OrganizationID <= 0 {
		return nil, dErrors.Validation("organization_id is required").WithMethod(methodTestMembers)
	}
	if p.Count <= 0 || p.Count > maxTestMembers {
		return nil, dErrors.Validation(fmt.Sprintf("count must be between 1 and %d", maxTestMembers),
			dErrors.FieldViolation{Field: "count", Value: fmt.Sprint(p.Count)}).WithMethod(methodTestMembers)
	}

	firstName := p.FirstName
	if firstName == "" {
		firstName = "Test"
	}
	lastName := p.LastName
	if lastName == "" {
		lastName = "Member"
	}
	domain := p.EmailDomain
	if domain == "" {
		domain = "example.com"
	}

	now := time.Now().UTC()
	lower := now.AddDate(0, 0, -1)
	upper := now.AddDate(0, 0, 365)

	created := make([]*models.MemberRecord, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		tag := uuid.NewString()[:8]
		rec, err := s.members.Create(ctx, &models.MemberRecord{
			OrganizationID: p.OrganizationID,
			UniqueCorpID:   "TEST" + tag,
			FirstName:      firstName,
			LastName:       lastName,
			Email:          fmt.Sprintf("test-member-%s@%s", tag, domain),
			DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Record:         models.Attributes{"test_record": true},
			EffectiveRange: models.Range{Lower: &lower, Upper: &upper},
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create test member").WithMethod(methodTestMembers)
		}
		created = append(created, rec)
	}
	s.logger.InfoContext(ctx, "created test members",
		"organization_id", p.OrganizationID, "count", len(created))
	return created, nil
}
