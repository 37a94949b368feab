// Package pre implements pre-eligibility lookups: candidate member
// searches that run before a user starts a verification flow.
package pre

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"eligibility/internal/member/models"
	"eligibility/internal/member/store"
	dErrors "eligibility/pkg/domain-errors"
)

const methodPreEligibility = "pre_eligibility"

// Service answers pre-eligibility candidate searches against the v1 store.
type Service struct {
	members store.Store
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(members store.Store, opts ...Option) *Service {
	s := &Service{members: members, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetMembersByNameAndDateOfBirth returns currently-effective records
// matching the name and birth date. A miss is an empty slice, not an
// error; pre-eligibility is advisory.
func (s *Service) GetMembersByNameAndDateOfBirth(ctx context.Context, firstName, lastName, dateOfBirth string) ([]*models.MemberRecord, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, dErrors.Validation("first and last name are required").WithMethod(methodPreEligibility)
	}
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(dateOfBirth))
	if err != nil {
		return nil, dErrors.Validation("invalid date of birth",
			dErrors.FieldViolation{Field: "date_of_birth", Value: dateOfBirth}).WithMethod(methodPreEligibility)
	}

	records, err := s.members.GetByNameAndDateOfBirth(ctx, firstName, lastName, dob.UTC())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "pre-eligibility lookup").WithMethod(methodPreEligibility)
	}
	if records == nil {
		records = []*models.MemberRecord{}
	}
	return records, nil
}
