package orgpolicy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/internal/orgpolicy/models"
	"eligibility/internal/orgpolicy/store"
	"eligibility/pkg/platform/sentinel"
	"eligibility/pkg/requestcontext"
)

func activeConfig(orgID int64) *models.Configuration {
	activated := time.Now().Add(-24 * time.Hour)
	return &models.Configuration{
		OrganizationID:  orgID,
		EligibilityType: models.TypeStandard,
		ActivatedAt:     &activated,
	}
}

func TestIsActive(t *testing.T) {
	ctx := context.Background()
	configs := store.NewMemory()
	svc := NewService(configs, NewStaticFlagProvider())

	t.Run("active org", func(t *testing.T) {
		configs.Put(activeConfig(10))
		assert.True(t, svc.IsActive(ctx, 10))
	})

	t.Run("unknown org is inactive", func(t *testing.T) {
		assert.False(t, svc.IsActive(ctx, 999))
	})

	t.Run("terminated org is inactive", func(t *testing.T) {
		cfg := activeConfig(11)
		terminated := time.Now().Add(-time.Hour)
		cfg.TerminatedAt = &terminated
		configs.Put(cfg)
		// fresh service, the previous subtests may have cached org 11
		svc := NewService(configs, NewStaticFlagProvider())
		assert.False(t, svc.IsActive(ctx, 11))
	})

	t.Run("not yet activated org is inactive", func(t *testing.T) {
		activated := time.Now().Add(24 * time.Hour)
		configs.Put(&models.Configuration{OrganizationID: 12, ActivatedAt: &activated})
		svc := NewService(configs, NewStaticFlagProvider())
		assert.False(t, svc.IsActive(ctx, 12))
	})

	t.Run("uses request time", func(t *testing.T) {
		cfg := activeConfig(13)
		terminated := time.Now().Add(time.Hour)
		cfg.TerminatedAt = &terminated
		configs.Put(cfg)
		svc := NewService(configs, NewStaticFlagProvider())

		future := requestcontext.WithTime(ctx, time.Now().Add(2*time.Hour))
		assert.False(t, svc.IsActive(future, 13))
	})
}

func TestConfigurationCache(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated gets hit the cache", func(t *testing.T) {
		configs := store.NewMemory()
		configs.Put(activeConfig(10))
		svc := NewService(configs, NewStaticFlagProvider())

		for range 5 {
			_, err := svc.Get(ctx, 10)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, configs.Loads())
	})

	t.Run("misses are cached", func(t *testing.T) {
		configs := store.NewMemory()
		svc := NewService(configs, NewStaticFlagProvider())

		for range 3 {
			_, err := svc.Get(ctx, 404)
			assert.ErrorIs(t, err, sentinel.ErrNotFound)
		}
		assert.Equal(t, 1, configs.Loads())
	})

	t.Run("concurrent loads coalesce", func(t *testing.T) {
		configs := store.NewMemory()
		configs.Put(activeConfig(10))
		svc := NewService(configs, NewStaticFlagProvider())

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.Get(ctx, 10)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, configs.Loads(), 2)
	})

	t.Run("lru eviction bounds the cache", func(t *testing.T) {
		configs := store.NewMemory()
		svc := NewService(configs, NewStaticFlagProvider(), WithCache(time.Minute, 4))
		for i := int64(1); i <= 10; i++ {
			configs.Put(activeConfig(i))
			_, err := svc.Get(ctx, i)
			require.NoError(t, err)
		}
		assert.Equal(t, 4, svc.cache.len())
	})

	t.Run("expired entries reload", func(t *testing.T) {
		configs := store.NewMemory()
		configs.Put(activeConfig(10))
		svc := NewService(configs, NewStaticFlagProvider(), WithCache(time.Minute, 8))

		_, err := svc.Get(ctx, 10)
		require.NoError(t, err)

		svc.cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err = svc.Get(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, configs.Loads())
	})
}

func TestMigrationFlags(t *testing.T) {
	ctx := context.Background()
	flags := NewStaticFlagProvider()
	svc := NewService(store.NewMemory(), flags)

	assert.False(t, svc.IsReadV2Enabled(ctx, 10))
	assert.False(t, svc.IsWriteV2Enabled(ctx, 10))

	flags.SetJSON(FlagReadV2Orgs, `[10, 20]`)
	flags.SetJSON(FlagWriteV2Orgs, `[20]`)

	assert.True(t, svc.IsReadV2Enabled(ctx, 10))
	assert.False(t, svc.IsWriteV2Enabled(ctx, 10))
	assert.True(t, svc.IsWriteV2Enabled(ctx, 20))
}

func TestOvereligibilityFlags(t *testing.T) {
	ctx := context.Background()
	flags := NewStaticFlagProvider()
	svc := NewService(store.NewMemory(), flags)

	assert.False(t, svc.IsOvereligibilityEnabled(ctx))
	flags.SetBool(FlagOvereligibility, true)
	assert.True(t, svc.IsOvereligibilityEnabled(ctx))

	// no org settings configured: nothing is covered
	assert.False(t, svc.AreAllOrgsOvereligibilityEnabled(ctx, []int64{10}))

	flags.SetJSON(FlagOvereligibilityOrgs, `{"enabled_all_orgs": false, "organizations": [10, 11]}`)
	assert.True(t, svc.AreAllOrgsOvereligibilityEnabled(ctx, []int64{10, 11}))
	assert.False(t, svc.AreAllOrgsOvereligibilityEnabled(ctx, []int64{10, 12}))

	flags.SetJSON(FlagOvereligibilityOrgs, `{"enabled_all_orgs": true}`)
	assert.True(t, svc.AreAllOrgsOvereligibilityEnabled(ctx, []int64{10, 12, 99}))
}

func TestIsWriteDisabled(t *testing.T) {
	ctx := context.Background()
	flags := NewStaticFlagProvider()
	svc := NewService(store.NewMemory(), flags)

	assert.False(t, svc.IsWriteDisabled(ctx))
	flags.SetBool(FlagDisableWrite, true)
	assert.True(t, svc.IsWriteDisabled(ctx))
}

func TestOrganizationsNotSendingDOB(t *testing.T) {
	set := OrganizationsNotSendingDOB()
	assert.Contains(t, set, int64(601))
	assert.NotContains(t, set, int64(7))

	// callers get a copy
	delete(set, 601)
	assert.Contains(t, OrganizationsNotSendingDOB(), int64(601))
}
