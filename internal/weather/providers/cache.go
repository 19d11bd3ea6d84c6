package providers

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/common"
	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/patrickmn/go-cache"
)

// CachedGeoResolver wraps a GeoResolver and caches successful resolutions.
// Failures are never cached.
type CachedGeoResolver struct {
	resolver weather.GeoResolver
	cache    *cache.Cache
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewCachedGeoResolver creates a cache with the given TTL.
func NewCachedGeoResolver(resolver weather.GeoResolver, ttl time.Duration) *CachedGeoResolver {
	return &CachedGeoResolver{
		resolver: resolver,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (c *CachedGeoResolver) Resolve(ctx context.Context, name string) (weather.ResolvedLocation, error) {
	key := common.NormalizeKey(name)
	if cached, found := c.cache.Get(key); found {
		c.hits.Add(1)
		log.Printf("DEBUG: geocode cache hit for %q", key)
		return cached.(weather.ResolvedLocation), nil
	}
	c.misses.Add(1)

	loc, err := c.resolver.Resolve(ctx, name)
	if err != nil {
		return weather.ResolvedLocation{}, err
	}
	c.cache.Set(key, loc, cache.DefaultExpiration)
	return loc, nil
}

// CacheStats returns statistics about cache hits and misses.
func (c *CachedGeoResolver) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

var _ weather.GeoResolver = (*CachedGeoResolver)(nil)
