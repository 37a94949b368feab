// Package orgpolicy caches per-organization configuration and answers the
// feature-flag questions that gate the v1/v2 migration.
package orgpolicy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eligibility/internal/orgpolicy/models"
	"eligibility/internal/orgpolicy/store"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

// organizationsNotSendingDOB lists organizations whose files omit dates of
// birth; the no-DOB match path is restricted to these.
var organizationsNotSendingDOB = map[int64]struct{}{
	484:  {},
	601:  {},
	620:  {},
	685:  {},
	686:  {},
	696:  {},
	2031: {},
	2049: {},
	2475: {},
}

// OrganizationsNotSendingDOB returns the built-in no-DOB org set.
func OrganizationsNotSendingDOB() map[int64]struct{} {
	out := make(map[int64]struct{}, len(organizationsNotSendingDOB))
	for k := range organizationsNotSendingDOB {
		out[k] = struct{}{}
	}
	return out
}

// Service is the read side of organization policy: configuration lookups go
// through a 30 minute cache, flag lookups go straight to the provider.
type Service struct {
	store  store.ConfigurationStore
	flags  FlagProvider
	cache  *configCache
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithCache(ttl time.Duration, capacity int) Option {
	return func(s *Service) { s.cache = newConfigCache(ttl, capacity) }
}

func NewService(configStore store.ConfigurationStore, flags FlagProvider, opts ...Option) *Service {
	s := &Service{
		store:  configStore,
		flags:  flags,
		cache:  newConfigCache(defaultCacheTTL, defaultCacheCapacity),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the organization's configuration, sentinel.ErrNotFound when
// the organization is unknown.
func (s *Service) Get(ctx context.Context, organizationID int64) (*models.Configuration, error) {
	return s.cache.get(ctx, organizationID, func() (*models.Configuration, error) {
		return s.store.Get(ctx, organizationID)
	})
}

// IsActive reports whether the organization's activation window contains the
// request time. Unknown organizations are inactive.
func (s *Service) IsActive(ctx context.Context, organizationID int64) bool {
	cfg, err := s.Get(ctx, organizationID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "configuration lookup failed",
				"organization_id", organizationID, "error", err)
		}
		return false
	}
	return cfg.IsActive(requestcontext.Now(ctx))
}

// EligibilityType returns the configured type, "" and false when the
// organization is unknown.
func (s *Service) EligibilityType(ctx context.Context, organizationID int64) (string, bool) {
	cfg, err := s.Get(ctx, organizationID)
	if err != nil {
		return "", false
	}
	return cfg.EligibilityType, true
}

func (s *Service) IsReadV2Enabled(ctx context.Context, organizationID int64) bool {
	return s.orgInFlagList(ctx, FlagReadV2Orgs, organizationID)
}

func (s *Service) IsWriteV2Enabled(ctx context.Context, organizationID int64) bool {
	return s.orgInFlagList(ctx, FlagWriteV2Orgs, organizationID)
}

func (s *Service) orgInFlagList(ctx context.Context, key string, organizationID int64) bool {
	var orgs []int64
	if err := s.flags.JSONVariation(ctx, key, &orgs); err != nil {
		return false
	}
	for _, id := range orgs {
		if id == organizationID {
			return true
		}
	}
	return false
}

// IsOvereligibilityEnabled is the over-eligibility kill switch.
func (s *Service) IsOvereligibilityEnabled(ctx context.Context) bool {
	return s.flags.BoolVariation(ctx, FlagOvereligibility, false)
}

// AreAllOrgsOvereligibilityEnabled reports whether every matched org is
// covered by the over-eligibility rollout.
func (s *Service) AreAllOrgsOvereligibilityEnabled(ctx context.Context, organizationIDs []int64) bool {
	var settings OvereligibilitySettings
	if err := s.flags.JSONVariation(ctx, FlagOvereligibilityOrgs, &settings); err != nil {
		return false
	}
	return settings.Covers(organizationIDs)
}

// IsWriteDisabled is the global verification-write kill switch.
func (s *Service) IsWriteDisabled(ctx context.Context) bool {
	return s.flags.BoolVariation(ctx, FlagDisableWrite, false)
}
