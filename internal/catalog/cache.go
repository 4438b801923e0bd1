package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/techshop-api/internal/obs"
)

// Cache keeps JSON snapshots of catalog reads in Redis.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache returns a cache whose entries live for ttl. A nil client or a
// non-positive ttl turns every read into a bypass.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// cached serves key from the cache or loads and stores it. Redis failures
// are logged and the repository answers instead.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	c := s.cache
	if !c.enabled() {
		obs.CatalogCacheTotal.WithLabelValues("bypass").Inc()
		return load()
	}

	var v T
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		obs.CatalogCacheTotal.WithLabelValues("miss").Inc()
	case err != nil:
		obs.CatalogCacheTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	default:
		if err := json.Unmarshal(raw, &v); err == nil {
			obs.CatalogCacheTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
		obs.CatalogCacheTotal.WithLabelValues("error").Inc()
		s.log.Warn().Str("key", key).Msg("dropping undecodable catalog cache entry")
	}

	v, err = load()
	if err != nil {
		var zero T
		return zero, err
	}
	raw, err = json.Marshal(v)
	if err == nil {
		err = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return v, nil
}
