package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type backend interface {
	LoadSnapshot(ctx context.Context, projectID string) ([]byte, error)
	SaveSnapshot(ctx context.Context, projectID string, data []byte) error
	PublishEvents(ctx context.Context, events []domain.BoardEvent) error
	Ping(ctx context.Context) error
}

// Cache wraps a Storage instance with Redis-backed caching for snapshot
// reads. Saves write through, so a cache hit always reflects the latest
// successful save from this process.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. A nil client or zero TTL disables caching and every call falls
// through to the base storage.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// LoadSnapshot returns the cached document when present, falling back to the
// backing storage and populating the cache on a miss. A missing snapshot is
// never cached.
func (c *Cache) LoadSnapshot(ctx context.Context, projectID string) ([]byte, error) {
	if data, ok := c.loadFromCache(ctx, projectID); ok {
		return data, nil
	}
	data, err := c.base.LoadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, projectID, data)
	return data, nil
}

// SaveSnapshot persists the document and refreshes the cached copy. Cache
// trouble never fails a successful save, the key is dropped instead.
func (c *Cache) SaveSnapshot(ctx context.Context, projectID string, data []byte) error {
	if err := c.base.SaveSnapshot(ctx, projectID, data); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	key := boardCacheKey(projectID)
	if c.ttl == 0 {
		_ = c.redis.Del(ctx, key).Err()
		return nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		_ = c.redis.Del(ctx, key).Err()
	}
	return nil
}

// PublishEvents forwards events to the backing storage unchanged.
func (c *Cache) PublishEvents(ctx context.Context, events []domain.BoardEvent) error {
	return c.base.PublishEvents(ctx, events)
}

// Ping forwards the health probe to the backing storage.
func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

func (c *Cache) loadFromCache(ctx context.Context, projectID string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, projectID string, data []byte) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(projectID), data, c.ttl).Err()
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}
