// Package store persists verifications, attempts, and member links.
package store

import (
	"context"
	"time"

	membermodels "eligibility/internal/member/models"
	"eligibility/internal/verification/models"
)

// CreateVerificationParams carries the columns written on a v1 create.
type CreateVerificationParams struct {
	UserID              int64
	OrganizationID      int64
	VerificationType    string
	Demographics        models.Demographics
	VerifiedAt          time.Time
	VerificationSession *string
	AdditionalFields    membermodels.Attributes
	Verification2ID     *int64
}

// CreateVerification2Params carries the columns written on a v2 create.
type CreateVerification2Params struct {
	UserID              int64
	OrganizationID      int64
	VerificationType    string
	MemberID            int64
	MemberVersion       int64
	Demographics        models.Demographics
	VerifiedAt          time.Time
	VerificationSession *string
	AdditionalFields    membermodels.Attributes
}

// CreateAttemptParams carries the columns written on an attempt. Attempts
// are recorded for failures too, so UserID and VerificationID are optional.
type CreateAttemptParams struct {
	UserID           *int64
	OrganizationID   int64
	VerificationType string
	Demographics     models.Demographics
	PolicyUsed       membermodels.Attributes
	VerificationID   *int64
	VerifiedAt       time.Time
}

// DualWriteParams creates a v2 verification, then the v1 verification
// pointing at it, inside one transaction.
type DualWriteParams struct {
	V1 CreateVerificationParams
	V2 CreateVerification2Params
}

// BatchRecord is one entry in a batch create. The store backfills
// VerificationID and VerificationAttemptID as the rows land.
type BatchRecord struct {
	UserID                int64
	OrganizationID        int64
	VerificationType      string
	EligibilityMemberID   *int64
	Demographics          models.Demographics
	VerifiedAt            time.Time
	VerificationSession   *string
	AdditionalFields      membermodels.Attributes
	VerificationID        *int64
	VerificationAttemptID *int64
}

// Store is the verification persistence port. Write methods participate in
// a transaction when one is carried by the context; batch methods are
// all-or-nothing inside WithTx.
type Store interface {
	// WithTx runs fn inside a transaction carried by the derived context.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateVerification(ctx context.Context, p CreateVerificationParams) (*models.Verification, error)
	CreateVerification2(ctx context.Context, p CreateVerification2Params) (*models.Verification2, error)
	CreateVerificationAttempt(ctx context.Context, p CreateAttemptParams) (*models.VerificationAttempt, error)
	CreateMemberVerification(ctx context.Context, memberID, verificationID, attemptID *int64) (*models.MemberVerification, error)
	CreateVerificationDualWrite(ctx context.Context, p DualWriteParams) (*models.Verification, error)
	CreateMultipleVerifications(ctx context.Context, records []*BatchRecord) error
	CreateMultipleVerificationAttempts(ctx context.Context, records []*BatchRecord) error
	CreateMultipleMemberVerifications(ctx context.Context, records []*BatchRecord) error

	// GetVerificationForMember returns the most recent active verification
	// linked to the v1 member, or sentinel.ErrNotFound.
	GetVerificationForMember(ctx context.Context, memberID int64) (*models.Verification, error)
	// GetVerification2ForMember returns the most recent active v2
	// verification for the v2 member, or sentinel.ErrNotFound.
	GetVerification2ForMember(ctx context.Context, member2ID int64) (*models.Verification2, error)
	GetVerificationKeyForUser(ctx context.Context, userID int64) (*models.VerificationKey, error)
	GetVerificationKey2ForUserAndOrg(ctx context.Context, userID, organizationID int64) (*models.VerificationKey, error)
	GetEligibilityVerificationRecordForUser(ctx context.Context, userID int64) (*models.ForUser, error)
	// GetAllEligibilityVerificationRecordsForUser returns every verification
	// for the user, newest first. An empty organizationIDs slice means no
	// organization filter.
	GetAllEligibilityVerificationRecordsForUser(ctx context.Context, userID int64, organizationIDs []int64) ([]*models.ForUser, error)
	GetEligibilityMemberIDForUserAndOrg(ctx context.Context, userID, organizationID int64) (*int64, error)
	GetVerificationAttemptsForMember(ctx context.Context, memberID int64) ([]*models.VerificationAttempt, error)

	DeactivateVerification(ctx context.Context, verificationID int64) (*models.Verification, error)
	DeactivateVerification2(ctx context.Context, verification2ID int64) error
	// GetVerification returns the verification row regardless of activity,
	// or sentinel.ErrNotFound.
	GetVerification(ctx context.Context, verificationID int64) (*models.Verification, error)
}
