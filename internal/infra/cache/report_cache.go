package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportCache stores serialized analytics reports with a fixed TTL.
type ReportCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewReportCache(client redis.UniversalClient, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Get returns ok=false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *ReportCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

func (c *ReportCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
