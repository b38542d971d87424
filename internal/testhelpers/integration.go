//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	APIURL         string
	CacheBackend   string // "redis", "memcached" or "in_memory"
	RedisAddr      string
	MemcachedAddrs string
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
		APIKey:         apiKey,
		APIURL:         envOr("BASE_URL", "https://api.weatherapi.com/v1"),
		CacheBackend:   envOr("INTEGRATION_CACHE_BACKEND", "in_memory"),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		MemcachedAddrs: envOr("MEMCACHED_ADDRS", "localhost:11211"),
	}
}

// SetupIntegrationService wires the real client to the configured store. A configured
// backend that does not answer a ping skips the test. The store is closed on cleanup.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *cache.ForecastCache) {
	t.Helper()
	store := newStore(cfg)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("%s not reachable: %v", cfg.CacheBackend, err)
	}

	logger := zaptest.NewLogger(t)
	fc := cache.NewForecastCache(store, logger)
	return service.NewWeatherService(SetupIntegrationClient(t, cfg), fc, service.WithLogger(logger)), fc
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	c, err := client.NewWeatherAPIClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return c
}

func newStore(cfg IntegrationTestConfig) cache.Store {
	switch cfg.CacheBackend {
	case cache.BackendRedis:
		return cache.NewRedisStore(cache.RedisConfig{Addr: cfg.RedisAddr})
	case cache.BackendMemcached:
		return cache.NewMemcachedStore(cfg.MemcachedAddrs, 500*time.Millisecond, 2)
	default:
		return cache.NewInMemoryStore()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
