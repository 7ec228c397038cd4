package coral

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

// Cache stores predictions by image digest.
type Cache interface {
	Get(ctx context.Context, key string) (Prediction, bool, error)
	Set(ctx context.Context, key string, p Prediction) error
}

// CacheKey returns the hex SHA-256 of the raw upload.
func CacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NopCache never hits.
type NopCache struct{}

// Get implements Cache.
func (NopCache) Get(context.Context, string) (Prediction, bool, error) { return Prediction{}, false, nil }

// Set implements Cache.
func (NopCache) Set(context.Context, string, Prediction) error { return nil }

// RedisCache keeps predictions in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects and pings. A failed ping is logged, not fatal:
// lookups then fail and the service classifies without the cache.
func NewRedisCache(opts RedisOptions) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisCache(client, opts.TTL)
}

func newRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	logger.Info("Cache", "Connecting to Redis at %s...", client.Options().Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Cache", "Failed to connect to Redis: %v", err)
	} else {
		logger.Info("Cache", "Connected to Redis")
	}

	return &RedisCache{client: client, prefix: "coral:prediction:", ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (Prediction, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Prediction{}, false, nil
	}
	if err != nil {
		return Prediction{}, false, fmt.Errorf("redis get: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(val, &p); err != nil {
		return Prediction{}, false, fmt.Errorf("decode cached prediction: %w", err)
	}
	return p, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, p Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
