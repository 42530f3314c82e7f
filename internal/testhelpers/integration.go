//go:build integration

// Package testhelpers builds live pipelines for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	GeocodeURL    string
	ForecastURL   string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		GeocodeURL:    envOr("WEATHER_GEOCODE_URL", "https://api.openweathermap.org/geo/1.0/direct"),
		ForecastURL:   envOr("WEATHER_FORECAST_URL", "https://api.openweathermap.org/data/2.5/forecast"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: envOr("MEMCACHED_ADDRS", "localhost:11211"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationClient creates a live OpenWeather client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.GeocodeURL, cfg.ForecastURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService wires a live client to the configured cache backend.
// A remote backend that cannot be constructed falls back to the in-memory cache.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.ForecastService, cache.Cache) {
	t.Helper()
	owc := SetupIntegrationClient(t, cfg)

	var c cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err != nil {
			t.Logf("memcached unavailable (%v), using in-memory cache", err)
			c = cache.NewInMemoryCache()
			break
		}
		t.Cleanup(func() { mc.Close() })
		c = mc
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisAddr, Timeout: time.Second})
		t.Cleanup(func() { rc.Close() })
		c = rc
	default:
		c = cache.NewInMemoryCache()
	}

	svc := service.NewForecastService(owc, owc, c, 10*time.Minute, time.Minute, zaptest.NewLogger(t))
	return svc, c
}
