package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Cache defines the interface for forecast caching implementations.
// Get returns the entry if present and not expired, Set stores it with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.CityForecast, bool, error)
	Set(ctx context.Context, key string, value models.CityForecast, ttl time.Duration) error
}

// Clock returns the current time. Injected so expiry can be tested deterministically.
type Clock func() time.Time

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock overrides the time source used for expiry.
func WithClock(clock Clock) Option {
	return func(c *InMemoryCache) {
		c.now = clock
	}
}

// remainingTTL returns how much of ttl is left for value at now, counting from value.FetchedAt.
// A zero or future FetchedAt leaves ttl unchanged.
func remainingTTL(value models.CityForecast, ttl time.Duration, now time.Time) time.Duration {
	if value.FetchedAt.IsZero() || value.FetchedAt.After(now) {
		return ttl
	}
	return ttl - now.Sub(value.FetchedAt)
}

// InMemoryCache implements Cache with a map guarded by a mutex.
// An entry is valid while now - FetchedAt < ttl; expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  Clock
}

type cacheEntry struct {
	value     models.CityForecast
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns (entry, true, nil) on hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.CityForecast, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.CityForecast{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return models.CityForecast{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores the entry, replacing any previous one for key. Expiry counts from value.FetchedAt
// when set, otherwise from now. An entry with no ttl left is not stored.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.CityForecast, ttl time.Duration) error {
	now := c.now()
	ttl = remainingTTL(value, ttl, now)
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// TTLFunc picks the TTL for a freshly computed entry. Zero means do not cache.
type TTLFunc func(models.CityForecast) time.Duration

// GetOrCompute returns the cached entry for key when fresh. Otherwise it calls compute once,
// stores the result with ttl(result) and returns it. hit reports whether compute was skipped.
// Backend errors never fail the call: a Get error is treated as a miss and a Set error is
// returned alongside the computed value.
func GetOrCompute(
	ctx context.Context,
	c Cache,
	key string,
	ttl TTLFunc,
	compute func(context.Context) models.CityForecast,
) (value models.CityForecast, hit bool, err error) {
	getStart := time.Now()
	cached, ok, getErr := c.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	switch {
	case getErr != nil:
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "hit").Observe(getDuration)
		observability.CacheHitsTotal.Inc()
		return cached, true, nil
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "miss").Observe(getDuration)
	}
	observability.CacheMissesTotal.Inc()

	value = compute(ctx)

	d := ttl(value)
	if d <= 0 {
		return value, false, getErr
	}
	setStart := time.Now()
	if setErr := c.Set(ctx, key, value, d); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		return value, false, setErr
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	return value, false, getErr
}

// FixedTTL returns a TTLFunc that caches every entry for d.
func FixedTTL(d time.Duration) TTLFunc {
	return func(models.CityForecast) time.Duration { return d }
}
