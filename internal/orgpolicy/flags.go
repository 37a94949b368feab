package orgpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"eligibility/internal/platform/redis"
)

// Feature flag keys. The migration flags carry JSON org-id lists; the rest
// are booleans.
const (
	FlagDisableWrite        = "eligibility-disable-write"
	FlagReadV2Orgs          = "eligibility-read-v2-orgs"
	FlagWriteV2Orgs         = "eligibility-write-v2-orgs"
	FlagOvereligibility     = "eligibility-overeligibility-enabled"
	FlagOvereligibilityOrgs = "eligibility-overeligibility-orgs"
	FlagMSFTCertAuth        = "eligibility-msft-cert-auth"
	FlagOptumRequestLogging = "eligibility-optum-request-logging"
)

// OvereligibilitySettings is the JSON variation of FlagOvereligibilityOrgs.
type OvereligibilitySettings struct {
	EnabledAllOrgs bool    `json:"enabled_all_orgs"`
	Organizations  []int64 `json:"organizations"`
}

// Covers reports whether every given org is enabled for over-eligibility.
func (s OvereligibilitySettings) Covers(organizationIDs []int64) bool {
	if s.EnabledAllOrgs {
		return true
	}
	enabled := make(map[int64]bool, len(s.Organizations))
	for _, id := range s.Organizations {
		enabled[id] = true
	}
	for _, id := range organizationIDs {
		if !enabled[id] {
			return false
		}
	}
	return true
}

// FlagProvider answers feature flag variations. Implementations own their
// refresh window; callers never cache results.
type FlagProvider interface {
	BoolVariation(ctx context.Context, key string, defaultValue bool) bool
	JSONVariation(ctx context.Context, key string, dst any) error
}

// RedisFlagProvider reads flag variations from Redis keys. Boolean flags are
// stored as "true"/"false"; JSON flags as raw JSON documents.
type RedisFlagProvider struct {
	client *redis.Client
}

func NewRedisFlagProvider(client *redis.Client) *RedisFlagProvider {
	return &RedisFlagProvider{client: client}
}

func (p *RedisFlagProvider) BoolVariation(ctx context.Context, key string, defaultValue bool) bool {
	raw, err := p.client.Get(ctx, key).Result()
	if err != nil {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "on":
		return true
	case "false", "0", "off":
		return false
	default:
		return defaultValue
	}
}

func (p *RedisFlagProvider) JSONVariation(ctx context.Context, key string, dst any) error {
	raw, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return fmt.Errorf("flag %s not set", key)
		}
		return fmt.Errorf("read flag %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode flag %s: %w", key, err)
	}
	return nil
}

// StaticFlagProvider serves fixed variations; the fallback when Redis is not
// configured, and the stub for unit tests.
type StaticFlagProvider struct {
	mu    sync.RWMutex
	bools map[string]bool
	jsons map[string]string
}

func NewStaticFlagProvider() *StaticFlagProvider {
	return &StaticFlagProvider{
		bools: make(map[string]bool),
		jsons: make(map[string]string),
	}
}

func (p *StaticFlagProvider) SetBool(key string, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bools[key] = value
}

func (p *StaticFlagProvider) SetJSON(key string, raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jsons[key] = raw
}

func (p *StaticFlagProvider) BoolVariation(_ context.Context, key string, defaultValue bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.bools[key]; ok {
		return v
	}
	return defaultValue
}

func (p *StaticFlagProvider) JSONVariation(_ context.Context, key string, dst any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw, ok := p.jsons[key]
	if !ok {
		return fmt.Errorf("flag %s not set", key)
	}
	return json.Unmarshal([]byte(raw), dst)
}
