package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// RedisCache implements Cache on redis, storing JSON-encoded entries with a native TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache. Connections are lazy; use Ping to check reachability.
func NewRedisCache(opts RedisOptions) *RedisCache {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	ro := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.Timeout > 0 {
		ro.DialTimeout = opts.Timeout
		ro.ReadTimeout = opts.Timeout
		ro.WriteTimeout = opts.Timeout
	}
	return &RedisCache{client: redis.NewClient(ro)}
}

// Get implements Cache.Get. redis.Nil is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (models.CityForecast, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CityForecast{}, false, nil
		}
		return models.CityForecast{}, false, fmt.Errorf("redis get: %w", err)
	}
	var data models.CityForecast
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.CityForecast{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return data, true, nil
}

// Set implements Cache.Set. The redis TTL is what remains of ttl since value.FetchedAt.
func (c *RedisCache) Set(ctx context.Context, key string, value models.CityForecast, ttl time.Duration) error {
	ttl = remainingTTL(value, ttl, time.Now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks if redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
