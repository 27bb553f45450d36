package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss indicates the key is not cached.
var ErrMiss = errors.New("cache miss")

// SummaryCache stores per-supplier-order delivery summaries as JSON.
// Entries are invalidated on every fulfillment mutation, so a short TTL is
// only a backstop.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache constructs the cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(supplierOrderID int64) string {
	return fmt.Sprintf("fulfillment:summary:%d", supplierOrderID)
}

// Get loads a cached summary into target.
func (c *SummaryCache) Get(ctx context.Context, supplierOrderID int64, target any) error {
	if c == nil || c.client == nil {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, summaryKey(supplierOrderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(data, target)
}

// Set stores a summary.
func (c *SummaryCache) Set(ctx context.Context, supplierOrderID int64, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(supplierOrderID), data, c.ttl).Err()
}

// Invalidate drops the cached summary for an order.
func (c *SummaryCache) Invalidate(ctx context.Context, supplierOrderID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(supplierOrderID)).Err()
}
