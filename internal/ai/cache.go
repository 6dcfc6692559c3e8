package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// VectorCache stores embedding vectors keyed by content hash. A hit skips a
// model call entirely, so identical text is never embedded twice.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// CacheKey builds the cache key for one piece of content under one model.
func CacheKey(model, version, contentHash string) string {
	return fmt.Sprintf("emb:%s:%s:%s", model, version, contentHash)
}

// RedisVectorCache keeps vectors in Redis as JSON arrays.
type RedisVectorCache struct {
	client *redis.Client
}

func NewRedisVectorCache(client *redis.Client) *RedisVectorCache {
	return &RedisVectorCache{client: client}
}

func (c *RedisVectorCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embedding cache read failed: %w", err)
	}
	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		return nil, false, nil
	}
	return vector, true, nil
}

func (c *RedisVectorCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("embedding cache encode failed: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("embedding cache write failed: %w", err)
	}
	return nil
}

// MemoryVectorCache is a process-local cache for tests and single-node runs.
type MemoryVectorCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

func NewMemoryVectorCache() *MemoryVectorCache {
	return &MemoryVectorCache{entries: make(map[string][]float32)}
}

func (c *MemoryVectorCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vector, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	return cp, true, nil
}

func (c *MemoryVectorCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	c.mu.Lock()
	c.entries[key] = cp
	c.mu.Unlock()
	return nil
}
