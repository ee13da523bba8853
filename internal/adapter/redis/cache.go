// Package redis implements the snapshot cache on Redis so several replicas
// share one cache and one invalidation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
)

const keyPrefix = "floodwatch:snapshot:"

// client is the subset of *redis.Client the cache uses.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Cache stores snapshots as JSON values with a TTL.
type Cache struct {
	client client
	ttl    time.Duration
}

// NewCache connects to addr and selects db.
func NewCache(addr string, db int, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		ttl: ttl,
	}
}

func key(stream snapshot.Stream) string {
	return keyPrefix + string(stream)
}

func (c *Cache) Get(ctx context.Context, stream snapshot.Stream) ([]domain.Assessment, bool, error) {
	data, err := c.client.Get(ctx, key(stream)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", stream, err)
	}

	var records []domain.Assessment
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("decode cached %s snapshot: %w", stream, err)
	}
	return records, true, nil
}

func (c *Cache) Put(ctx context.Context, stream snapshot.Stream, records []domain.Assessment) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", stream, err)
	}
	if err := c.client.Set(ctx, key(stream), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", stream, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, stream snapshot.Stream) error {
	if err := c.client.Del(ctx, key(stream)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", stream, err)
	}
	return nil
}

// CheckReadiness pings the server.
func (c *Cache) CheckReadiness(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
