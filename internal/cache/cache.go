package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/logging"
)

const (
	keyPrefix = "listings:"
	scanCount = 100
)

// ListingCache stores serialized listing query responses
type ListingCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context) error
	Close() error
}

// Key derives a stable cache key from a listing query. Parameter order and
// the order of repeated values do not matter.
func Key(query url.Values) string {
	normalized := make(url.Values, len(query))
	for k, values := range query {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		normalized[k] = sorted
	}

	// Encode escapes values and sorts by parameter name
	sum := sha256.Sum256([]byte(normalized.Encode()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// New returns a Redis backed cache, or a no-op cache when no address is configured
func New(cfg *config.Config, logger *logrus.Logger) (ListingCache, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Redis.Addr == "" {
		logger.Info("Redis address not set, listing cache disabled")
		return Noop{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")

	return NewRedisCache(client, cfg.Redis.TTL, logger), nil
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get reports a miss on any Redis error; the caller falls back to the database
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Redis GET failed")
		}
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis SET failed")
	}
}

// Invalidate drops every cached listing response
func (c *RedisCache) Invalidate(ctx context.Context) error {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}

	c.logger.WithField("keys", len(keys)).Debug("Listing cache invalidated")
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop is used when Redis is not configured
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte) {}
func (Noop) Invalidate(context.Context) error { return nil }
func (Noop) Close() error { return nil }
