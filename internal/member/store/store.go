// Package store provides the v1 and v2 member lookup implementations.
// Stores are pure I/O; activity rules and tie-breaking belong to the
// match engine.
package store

import (
	"context"
	"time"

	"eligibility/internal/member/models"
)

// Store is the lookup surface the match engine needs. Both schema variants
// implement it and return the unified MemberRecord shape.
//
// Every list query filters to records whose effective range contains today.
// Get and GetByOrgIdentity return the row verbatim; the caller decides.
// Misses are sentinel.ErrNotFound for single-row lookups and empty slices
// for list lookups.
type Store interface {
	Get(ctx context.Context, id int64) (*models.MemberRecord, error)
	GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberRecord, error)
	GetByDOBAndEmail(ctx context.Context, dob time.Time, email string) ([]*models.MemberRecord, error)
	GetBySecondaryVerification(ctx context.Context, dob time.Time, firstName, lastName, workState string) ([]*models.MemberRecord, error)
	GetByTertiaryVerification(ctx context.Context, dob time.Time, uniqueCorpID string) ([]*models.MemberRecord, error)
	GetByEmailAndName(ctx context.Context, email, firstName, lastName string) ([]*models.MemberRecord, error)
	GetByNameAndDateOfBirth(ctx context.Context, firstName, lastName string, dob time.Time) ([]*models.MemberRecord, error)
	GetByOvereligibility(ctx context.Context, dob time.Time, firstName, lastName string) ([]*models.MemberRecord, error)
	GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error)
	GetWalletEnablementByIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error)
	GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error)
}
