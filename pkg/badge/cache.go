package badge

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const activeKey = "active"

// CachedCatalog keeps the active badge list in memory for a short TTL.
// Writers must call Invalidate after changing badges.
type CachedCatalog struct {
	next  Catalog
	cache *gocache.Cache
}

// NewCachedCatalog wraps next. A ttl of zero or less disables caching.
func NewCachedCatalog(next Catalog, ttl time.Duration) *CachedCatalog {
	var c *gocache.Cache
	if ttl > 0 {
		c = gocache.New(ttl, 2*ttl)
	}
	return &CachedCatalog{next: next, cache: c}
}

// ListActiveBadges returns the cached snapshot, loading it on a miss.
// Failed loads are not cached.
func (c *CachedCatalog) ListActiveBadges(ctx context.Context) ([]Badge, error) {
	if c.cache == nil {
		return c.next.ListActiveBadges(ctx)
	}

	if v, ok := c.cache.Get(activeKey); ok {
		return CloneAll(v.([]Badge)), nil
	}

	badges, err := c.next.ListActiveBadges(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(activeKey, CloneAll(badges))
	logrus.Debugf("cached %d active badges", len(badges))
	return badges, nil
}

// Invalidate drops the cached snapshot.
func (c *CachedCatalog) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(activeKey)
	}
}
