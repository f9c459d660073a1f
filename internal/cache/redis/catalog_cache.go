package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// minCatalogTTL is the floor for catalog freshness; a shorter TTL would defeat
// the point of shielding the Gamma API from tick bursts.
const minCatalogTTL = 10 * time.Second

const catalogKey = "catalog:markets"

// CatalogCache implements domain.CatalogCache with a single JSON-serialized
// Redis key holding the whole market list.
type CatalogCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCatalogCache creates a CatalogCache with the given TTL, clamped to the
// 10-second floor.
func NewCatalogCache(c *Client, ttl time.Duration) *CatalogCache {
	if ttl < minCatalogTTL {
		ttl = minCatalogTTL
	}
	return &CatalogCache{rdb: c.Underlying(), ttl: ttl}
}

// SetCatalog replaces the cached market list.
func (cc *CatalogCache) SetCatalog(ctx context.Context, markets []domain.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal catalog: %w", err)
	}
	if err := cc.rdb.Set(ctx, catalogKey, data, cc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set catalog: %w", err)
	}
	return nil
}

// GetCatalog returns the cached market list, or domain.ErrNotFound when the
// cache is cold or expired.
func (cc *CatalogCache) GetCatalog(ctx context.Context) ([]domain.Market, error) {
	data, err := cc.rdb.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get catalog: %w", err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal catalog: %w", err)
	}
	return markets, nil
}

// Invalidate drops the cached catalog so the next tick refetches.
func (cc *CatalogCache) Invalidate(ctx context.Context) error {
	if err := cc.rdb.Del(ctx, catalogKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate catalog: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CatalogCache = (*CatalogCache)(nil)
