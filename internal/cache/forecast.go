package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// keyHourLayout buckets forecasts per clock hour (24-hour). Minutes and seconds are dropped.
const keyHourLayout = "2006:01:02:15"

// KeyFor derives the cache key for city at t: trimmed lower-case city followed by the hour bucket.
func KeyFor(city string, t time.Time) string {
	return strings.ToLower(strings.TrimSpace(city)) + t.Format(keyHourLayout)
}

// cachedReading is the stored form of a forecast reading. The timestamp is RFC 3339 with its
// offset, so a hit returns the same instant the miss produced.
type cachedReading struct {
	City        string      `json:"city"`
	Temperature float64     `json:"temperature"`
	Unit        models.Unit `json:"unit"`
	Timestamp   time.Time   `json:"timestamp"`
}

func encodeReading(r models.WeatherReading) ([]byte, error) {
	return json.Marshal(cachedReading{City: r.City, Temperature: r.Temperature, Unit: r.Unit, Timestamp: *r.Timestamp})
}

func decodeReading(raw []byte) (models.WeatherReading, error) {
	var v cachedReading
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.WeatherReading{}, err
	}
	if v.City == "" || v.Timestamp.IsZero() {
		return models.WeatherReading{}, errors.New("cached reading missing city or timestamp")
	}
	reading := models.NewForecastReading(v.City, v.Temperature, v.Timestamp)
	reading.Unit = v.Unit
	return reading, nil
}

// ForecastCache is a read-through cache of forecast readings keyed by city and hour.
type ForecastCache struct {
	store  Store
	logger *zap.Logger
}

// NewForecastCache wraps store. A nil logger disables logging.
func NewForecastCache(store Store, logger *zap.Logger) *ForecastCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastCache{store: store, logger: logger}
}

// Get looks up the reading for city at t with one store read. Store errors and undecodable
// values are logged and reported as a miss.
func (c *ForecastCache) Get(ctx context.Context, city string, t time.Time) (models.WeatherReading, bool) {
	key := KeyFor(city, t)
	start := time.Now()
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(time.Since(start).Seconds())
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeStoreError(err)).Inc()
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		observability.LoggerOr(ctx, c.logger).Warn("cache get failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return models.WeatherReading{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(time.Since(start).Seconds())
	if !ok {
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return models.WeatherReading{}, false
	}

	reading, err := decodeReading(raw)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", "decode").Inc()
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		observability.LoggerOr(ctx, c.logger).Warn("cache value undecodable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return models.WeatherReading{}, false
	}
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return reading, true
}

// Put stores reading under the key derived from its own city and timestamp, overwriting any
// previous entry. Readings without a city or timestamp are rejected before the store is touched.
func (c *ForecastCache) Put(ctx context.Context, reading models.WeatherReading) error {
	return c.PutAs(ctx, reading.City, reading)
}

// PutAs stores reading under the key for lookupCity. The facade uses it so a reading that
// carries the provider's canonical location name is found again by the city that was asked for.
func (c *ForecastCache) PutAs(ctx context.Context, lookupCity string, reading models.WeatherReading) error {
	if strings.TrimSpace(lookupCity) == "" || strings.TrimSpace(reading.City) == "" {
		return validation.ErrCityEmpty
	}
	if reading.Timestamp == nil {
		return validation.ErrTimestampMissing
	}
	raw, err := encodeReading(reading)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	key := KeyFor(lookupCity, *reading.Timestamp)
	start := time.Now()
	if err := c.store.Set(ctx, key, raw); err != nil {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeStoreError(err)).Inc()
		return fmt.Errorf("%w: set %s: %v", ErrCacheUnavailable, key, err)
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
	return nil
}

// Ping checks the backing store. Used by the health handler.
func (c *ForecastCache) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

