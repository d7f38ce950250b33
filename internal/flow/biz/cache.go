package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wbt-web-support/chatbot-flow/pkg/utils/json"
)

// EmbeddingCacheConfig configures the redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool
	// TTL is the cache entry lifetime. Embeddings are stable, so a long
	// TTL is fine.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig returns the default cache configuration.
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "flow:embed:",
	}
}

// EmbeddingCache caches embeddings in redis keyed by a SHA-256 of the
// (already truncated) input text. All failures degrade to a miss.
type EmbeddingCache struct {
	redis  *goredis.Client
	config *EmbeddingCacheConfig
}

// NewEmbeddingCache creates an embedding cache. A nil redis client yields a
// cache that never hits.
func NewEmbeddingCache(redis *goredis.Client, config *EmbeddingCacheConfig) *EmbeddingCache {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &EmbeddingCache{redis: redis, config: config}
}

func (c *EmbeddingCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

func (c *EmbeddingCache) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached embedding for text, if any.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	if !c.enabled() {
		return nil, false
	}

	key := c.key(text)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("redis get error, treating as cache miss", "error", err.Error())
		}
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warnw("failed to unmarshal cached embedding, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return embedding, true
}

// Set stores an embedding. Failures are logged and swallowed.
func (c *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32) {
	if !c.enabled() {
		return
	}

	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warnw("failed to marshal embedding for caching", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, c.key(text), data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error())
	}
}
