// Package member unifies the v1 and v2 member stores behind a router that
// decides, per organization, which stores are read and written.
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eligibility/internal/member/models"
	"eligibility/internal/member/store"
	"eligibility/pkg/platform/sentinel"
)

// ErrSyncMismatch signals that the two stores disagree for an organization
// whose dual writes are enabled. This is a logic bug in the migration, not a
// caller error.
var ErrSyncMismatch = fmt.Errorf("%w: member stores disagree", sentinel.ErrInvalidState)

// FlagChecker answers the per-organization migration flags.
type FlagChecker interface {
	IsReadV2Enabled(ctx context.Context, organizationID int64) bool
	IsWriteV2Enabled(ctx context.Context, organizationID int64) bool
}

// Strategy names the store combination used for an organization.
type Strategy int

const (
	// V1Only reads and writes v1 exclusively.
	V1Only Strategy = iota
	// V2Preferred reads v2 first and falls back to v1 on a miss.
	V2Preferred
	// V2Authoritative requires v1 and v2 to agree; a v2 miss on a write
	// path is a sync mismatch.
	V2Authoritative
)

// Router owns the dual-store coherence protocol. Callers never pick a store
// directly.
type Router struct {
	v1     store.Store
	v2     store.Store
	flags  FlagChecker
	logger *slog.Logger
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter builds a router. v2 may be nil when the v2 database is not
// configured; all strategies then collapse to V1Only.
func NewRouter(v1 store.Store, v2 store.Store, flags FlagChecker, opts ...RouterOption) *Router {
	r := &Router{v1: v1, v2: v2, flags: flags, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// V1 exposes the v1 store for queries the router does not mediate
// (pre-eligibility, admin tooling).
func (r *Router) V1() store.Store { return r.v1 }

// V2 exposes the v2 store, nil when not configured.
func (r *Router) V2() store.Store { return r.v2 }

// StrategyFor resolves the store combination for one organization.
func (r *Router) StrategyFor(ctx context.Context, organizationID int64) Strategy {
	if r.v2 == nil {
		return V1Only
	}
	if r.flags.IsWriteV2Enabled(ctx, organizationID) {
		return V2Authoritative
	}
	if r.flags.IsReadV2Enabled(ctx, organizationID) {
		return V2Preferred
	}
	return V1Only
}

// GetByMemberID reads a member by its v1 id and, when the organization is
// migrated, pairs it with the v2 row. A missing v2 row on this read path
// falls back to v1 with a log line.
func (r *Router) GetByMemberID(ctx context.Context, id int64) (*models.MemberResponse, error) {
	v1Rec, err := r.v1.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.pairForRead(ctx, v1Rec), nil
}

// GetByOrgIdentity resolves the identity tuple, v2-paired when migrated.
func (r *Router) GetByOrgIdentity(ctx context.Context, identity models.OrgIdentity) (*models.MemberResponse, error) {
	v1Rec, err := r.v1.GetByOrgIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return r.pairForRead(ctx, v1Rec), nil
}

func (r *Router) pairForRead(ctx context.Context, v1Rec *models.MemberRecord) *models.MemberResponse {
	if r.StrategyFor(ctx, v1Rec.OrganizationID) == V1Only {
		return models.FromV1(v1Rec)
	}
	v2Rec, err := r.v2.GetByOrgIdentity(ctx, v1Rec.Identity())
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			r.logger.ErrorContext(ctx, "v2 member read failed, serving v1",
				"member_id", v1Rec.ID, "organization_id", v1Rec.OrganizationID, "error", err)
		} else {
			r.logger.WarnContext(ctx, "v2 member missing for migrated org, serving v1",
				"member_id", v1Rec.ID, "organization_id", v1Rec.OrganizationID)
		}
		return models.FromV1(v1Rec)
	}
	return models.FromPair(v1Rec, v2Rec)
}

// PairForWrite applies the write-path protocol to a matched v1 record: when
// the organization's dual writes are enabled, the same criteria must resolve
// exactly one v2 row in the same organization, otherwise ErrSyncMismatch.
func (r *Router) PairForWrite(ctx context.Context, v1Rec *models.MemberRecord,
	v2Query func(ctx context.Context, s store.Store) ([]*models.MemberRecord, error)) (*models.MemberResponse, error) {

	if r.StrategyFor(ctx, v1Rec.OrganizationID) != V2Authoritative {
		return models.FromV1(v1Rec), nil
	}

	candidates, err := v2Query(ctx, r.v2)
	if err != nil {
		return nil, fmt.Errorf("query v2 counterpart: %w", err)
	}

	var match *models.MemberRecord
	for _, c := range candidates {
		if c.OrganizationID != v1Rec.OrganizationID {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: multiple v2 rows for organization %d", ErrSyncMismatch, v1Rec.OrganizationID)
		}
		match = c
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no v2 row for organization %d", ErrSyncMismatch, v1Rec.OrganizationID)
	}
	return models.FromPair(v1Rec, match), nil
}

// GetWalletEnablement derives the wallet view for a v1 member id, preferring
// the migrated v2 payload when available.
func (r *Router) GetWalletEnablement(ctx context.Context, memberID int64) (*models.WalletEnablement, error) {
	resp, err := r.GetByMemberID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(&resp.MemberRecord), nil
}

// GetWalletEnablementByIdentity derives the wallet view for an identity tuple.
func (r *Router) GetWalletEnablementByIdentity(ctx context.Context, identity models.OrgIdentity) (*models.WalletEnablement, error) {
	resp, err := r.GetByOrgIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return models.WalletFromRecord(&resp.MemberRecord), nil
}

// GetOtherUserIDsInFamily prefers v2 verification links and falls back to v1
// when v2 yields nothing.
func (r *Router) GetOtherUserIDsInFamily(ctx context.Context, userID int64) ([]int64, error) {
	if r.v2 != nil {
		ids, err := r.v2.GetOtherUserIDsInFamily(ctx, userID)
		if err == nil && len(ids) > 0 {
			return ids, nil
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "v2 family lookup failed, falling back to v1",
				"user_id", userID, "error", err)
		}
	}
	return r.v1.GetOtherUserIDsInFamily(ctx, userID)
}
