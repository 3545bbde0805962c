package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/variation"
)

// DefaultCatalogTTL bounds how stale a cached catalog may get.
const DefaultCatalogTTL = 5 * time.Minute

const catalogKey = "pizza:variations"

var _ variation.Repository = (*CatalogCache)(nil)

// CatalogCache is a read-through cache in front of a variation.Repository.
// Redis failures fall through to the underlying repository.
type CatalogCache struct {
	client redis.UniversalClient
	next   variation.Repository
	ttl    time.Duration
}

// NewCatalogCache wraps next. ttl <= 0 selects DefaultCatalogTTL.
func NewCatalogCache(client redis.UniversalClient, next variation.Repository, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogCache{client: client, next: next, ttl: ttl}
}

// List returns the cached catalog or loads and caches it.
func (c *CatalogCache) List(ctx context.Context) ([]variation.Variation, error) {
	lg := zctx.From(ctx)

	data, err := c.client.Get(ctx, catalogKey).Bytes()
	switch {
	case err == nil:
		var vs []variation.Variation
		if err := json.Unmarshal(data, &vs); err == nil {
			return vs, nil
		}
		lg.Warn("Discard corrupt catalog cache entry")
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Catalog cache unavailable", zap.Error(err))
	}

	vs, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vs); err == nil {
		if err := c.client.Set(ctx, catalogKey, data, c.ttl).Err(); err != nil {
			lg.Warn("Store catalog cache", zap.Error(err))
		}
	}
	return vs, nil
}

// Invalidate drops the cached catalog.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogKey).Err()
}
