package orgpolicy

import (
	"container/list"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eligibility/internal/orgpolicy/models"
	"eligibility/pkg/platform/sentinel"
)

const (
	defaultCacheTTL      = 30 * time.Minute
	defaultCacheCapacity = 1024
)

// configCache is a read-through TTL cache with LRU eviction. Misses are
// cached too, otherwise unknown org ids would hammer the database.
// Concurrent refills of one key coalesce to a single load.
type configCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[int64]*list.Element
	order    *list.List
	group    singleflight.Group
	now      func() time.Time
}

type cacheEntry struct {
	key     int64
	cfg     *models.Configuration // nil means known-absent
	expires time.Time
}

func newConfigCache(ttl time.Duration, capacity int) *configCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &configCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[int64]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// get returns the cached configuration, loading through load on a miss or
// expired entry. A sentinel.ErrNotFound from load is cached as absent.
func (c *configCache) get(ctx context.Context, key int64, load func() (*models.Configuration, error)) (*models.Configuration, error) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		if c.now().Before(entry.expires) {
			c.order.MoveToFront(el)
			cfg := entry.cfg
			c.mu.Unlock()
			if cfg == nil {
				return nil, sentinel.ErrNotFound
			}
			cp := *cfg
			return &cp, nil
		}
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatInt(key, 10), func() (any, error) {
		cfg, err := load()
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		c.store(key, cfg)
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	cfg, _ := v.(*models.Configuration)
	if cfg == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (c *configCache) store(key int64, cfg *models.Configuration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{key: key, cfg: cfg, expires: c.now().Add(c.ttl)}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(entry)

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *configCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
