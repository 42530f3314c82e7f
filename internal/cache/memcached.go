package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	keyPrefix       = "forecast:"
	hashedKeyPrefix = "forecast#"
	maxKeyLen       = 250
)

// maxRelativeExp is the largest expiration memcached treats as relative seconds (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached. Entries are JSON-encoded CityForecast values.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedKey maps a city to a memcached key. Safe cities pass through under keyPrefix; a city
// with spaces or control characters, or one that would exceed 250 bytes, is hashed under
// hashedKeyPrefix. The prefixes differ at the same byte, so the two forms never collide.
func memcachedKey(city string) string {
	k := keyPrefix + city
	if len(k) <= maxKeyLen && !strings.ContainsFunc(city, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return k
	}
	sum := sha256.Sum256([]byte(city))
	return hashedKeyPrefix + hex.EncodeToString(sum[:])
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.CityForecast, bool, error) {
	if ctx.Err() != nil {
		return models.CityForecast{}, false, ctx.Err()
	}
	item, err := c.client.Get(memcachedKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.CityForecast{}, false, nil
		}
		return models.CityForecast{}, false, fmt.Errorf("memcached get: %w", err)
	}
	var data models.CityForecast
	if err := json.Unmarshal(item.Value, &data); err != nil {
		return models.CityForecast{}, false, fmt.Errorf("memcached decode: %w", err)
	}
	return data, true, nil
}

// Set implements Cache.Set. Expiration is what remains of ttl since value.FetchedAt, rounded
// down to whole seconds; less than one second left stores nothing.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.CityForecast, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ttl = remainingTTL(value, ttl, time.Now())
	if ttl < time.Second {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode: %w", err)
	}
	expSec := int32(ttl / time.Second)
	if expSec > maxRelativeExp {
		expSec = maxRelativeExp
	}
	return c.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping(ctx context.Context) error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
