package wayback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SnapshotCache stores raw archived content keyed by the archive's
// capture digest. Failures are swallowed as misses; the cache only
// saves round-trips to the archive, it is never authoritative.
type SnapshotCache interface {
	Get(ctx context.Context, digest string) ([]byte, bool)
	Put(ctx context.Context, digest string, content []byte)
}

const snapshotKeyPrefix = "wayback:snapshot:"

var _ SnapshotCache = &RedisCache{}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to redis and verifies the connection. TTL of
// zero keeps entries for 30 days; captures are immutable so the TTL
// only bounds storage, not correctness.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, digest string) ([]byte, bool) {
	content, err := c.client.Get(ctx, snapshotKeyPrefix+digest).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Debug("redis get failed, treating as miss", zap.String("digest", digest), zap.Error(err))
		return nil, false
	}
	return content, true
}

func (c *RedisCache) Put(ctx context.Context, digest string, content []byte) {
	if err := c.client.Set(ctx, snapshotKeyPrefix+digest, content, c.ttl).Err(); err != nil {
		c.logger.Debug("redis set failed", zap.String("digest", digest), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ SnapshotCache = &MemoryCache{}

// MemoryCache is the in-process fallback used when no redis address is
// configured, and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string][]byte{}}
}

func (c *MemoryCache) Get(_ context.Context, digest string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.entries[digest]
	return content, ok
}

func (c *MemoryCache) Put(_ context.Context, digest string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[digest] = content
}
