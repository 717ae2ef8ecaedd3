package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "idem"

// RedisDeduper stores the ids produced for idempotency keys in Redis so all
// instances answer a replayed creation request with the original id.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(projectID, key string) string {
	return dedupeKeyPrefix + ":" + projectID + ":" + key
}

// Recall returns the id recorded for the key, if any.
func (r *RedisDeduper) Recall(ctx context.Context, projectID, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(projectID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Remember records the id produced for the key.
func (r *RedisDeduper) Remember(ctx context.Context, projectID, key, id string) error {
	return r.client.Set(ctx, r.key(projectID, key), id, r.ttl).Err()
}
