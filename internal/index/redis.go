package index

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pdlbus/internal/constants"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

// RedisIndex stores one key per notification with a TTL running to the
// retention time, so Redis expires entries itself.
type RedisIndex struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{
		client: client,
		prefix: constants.CacheKeyPrefixNotification,
		now:    time.Now,
	}
}

func (r *RedisIndex) key(id product.ID) string {
	return r.prefix + id.String()
}

func (r *RedisIndex) Lookup(ctx context.Context, id product.ID) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis Exists failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisIndex) Record(ctx context.Context, env *notification.Envelope) error {
	now := r.now()
	e := newEntry(env, now)
	ttl := e.Expires.Sub(now)

	// A concurrent receiver may have recorded it first; either way it is
	// recorded.
	if _, err := r.client.SetNX(ctx, r.key(env.ID), e.ProductURL, ttl).Result(); err != nil {
		return fmt.Errorf("redis SetNX failed: %w", err)
	}
	return nil
}

func (r *RedisIndex) RemoveExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *RedisIndex) Count(ctx context.Context) (int64, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var count int64
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}

func (r *RedisIndex) Close() error {
	return nil
}
