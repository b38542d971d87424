package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// ErrValidation is returned for blank cities, missing timestamps, missing payloads and
// timestamps outside the forecast window.
var ErrValidation = validation.ErrValidation

// ErrReadingMissing is returned by SaveWeather for a nil payload.
var ErrReadingMissing = fmt.Errorf("%w: weather reading missing", ErrValidation)

// ForecastCache is the read-through cache the facade consults. *cache.ForecastCache implements it.
type ForecastCache interface {
	Get(ctx context.Context, city string, t time.Time) (models.WeatherReading, bool)
	Put(ctx context.Context, reading models.WeatherReading) error
	PutAs(ctx context.Context, lookupCity string, reading models.WeatherReading) error
}

const defaultMaxForecastDays = 14

// WeatherService resolves current and forecast temperatures. Forecasts go through the cache;
// current conditions never touch it. Safe for concurrent use.
type WeatherService struct {
	client    client.WeatherClient
	cache     ForecastCache
	validator *validation.Validator
	now       func() time.Time
	maxDays   int
	misses    *missTracker
	coalescer *forecastCoalescer
	logger    *zap.Logger
}

// Option configures a WeatherService.
type Option func(*WeatherService)

// WithClock sets the time source for day arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *WeatherService) { s.now = now }
}

// WithMaxForecastDays caps the provider days parameter. Lookups needing more are rejected.
func WithMaxForecastDays(n int) Option {
	return func(s *WeatherService) {
		if n > 0 {
			s.maxDays = n
		}
	}
}

// WithCoalescing shares one upstream fetch among concurrent misses for the same key.
// A zero timeout leaves coalescing off.
func WithCoalescing(timeout time.Duration) Option {
	return func(s *WeatherService) {
		if timeout > 0 {
			s.coalescer = newForecastCoalescer(timeout)
		}
	}
}

// WithValidator replaces the default city validator.
func WithValidator(v *validation.Validator) Option {
	return func(s *WeatherService) { s.validator = v }
}

// WithLogger sets the fallback logger for calls without a request-scoped one.
func WithLogger(l *zap.Logger) Option {
	return func(s *WeatherService) { s.logger = l }
}

// NewWeatherService wires the provider client and forecast cache.
func NewWeatherService(c client.WeatherClient, fc ForecastCache, opts ...Option) *WeatherService {
	s := &WeatherService{
		client:    c,
		cache:     fc,
		validator: validation.New(1, 100),
		now:       time.Now,
		maxDays:   defaultMaxForecastDays,
		misses:    newMissTracker(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCurrent returns the current temperature for city. The result is not cached.
func (s *WeatherService) GetCurrent(ctx context.Context, city string) (models.WeatherReading, error) {
	city, err := s.validator.City(city)
	if err != nil {
		return models.WeatherReading{}, err
	}
	observability.RecordWeatherQuery("current", city)

	env, err := s.client.FetchCurrent(ctx, city)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("fetch current for %s: %w", city, err)
	}
	return models.NewCurrentReading(readingCity(env, city), env.Current.TempC), nil
}

// GetForecast returns the temperature for city at the hour containing t. A cached reading is
// returned as is; on a miss the provider is asked for enough days that the last day returned
// is t's day, the hour is picked by index and the reading is written back before returning.
func (s *WeatherService) GetForecast(ctx context.Context, city string, t time.Time) (models.WeatherReading, error) {
	city, err := s.validator.City(city)
	if err != nil {
		return models.WeatherReading{}, err
	}
	if t.IsZero() {
		return models.WeatherReading{}, validation.ErrTimestampMissing
	}
	observability.RecordWeatherQuery("forecast", city)
	logger := observability.LoggerOr(ctx, s.logger)

	if cached, ok := s.cache.Get(ctx, city, t); ok {
		logger.Debug("forecast cache hit", zap.String("city", city), zap.Time("at", t))
		return cached, nil
	}

	key := cache.KeyFor(city, t)
	concurrent, done := s.misses.begin(key)
	defer done()
	if concurrent > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
	}
	logger.Debug("forecast cache miss, fetching upstream", zap.String("key", key), zap.Int("concurrent_misses", concurrent))

	if s.coalescer != nil {
		return s.coalescer.do(ctx, key, func(ctx context.Context) (models.WeatherReading, error) {
			return s.resolveForecast(ctx, city, t)
		})
	}
	return s.resolveForecast(ctx, city, t)
}

func (s *WeatherService) resolveForecast(ctx context.Context, city string, t time.Time) (models.WeatherReading, error) {
	days := client.DaysAhead(s.now(), t)
	if days < 1 || days > s.maxDays {
		return models.WeatherReading{}, fmt.Errorf("%w: %s is outside the %d-day forecast window",
			ErrValidation, t.Format(models.RequestDateTimeLayout), s.maxDays)
	}

	env, err := s.client.FetchForecast(ctx, city, days)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("fetch forecast for %s: %w", city, err)
	}
	hour, err := client.SelectHour(env, t)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("select forecast hour for %s: %w", city, err)
	}

	reading := models.NewForecastReading(readingCity(env, city), hour.TempC, t)
	if err := s.cache.PutAs(ctx, city, reading); err != nil {
		return models.WeatherReading{}, fmt.Errorf("store forecast for %s: %w", city, err)
	}
	return reading, nil
}

// SaveWeather writes reading into the forecast cache under its own city and timestamp.
func (s *WeatherService) SaveWeather(ctx context.Context, reading *models.WeatherReading) error {
	if reading == nil {
		return ErrReadingMissing
	}
	city, err := s.validator.City(reading.City)
	if err != nil {
		return err
	}
	if reading.Timestamp == nil || reading.Timestamp.IsZero() {
		return validation.ErrTimestampMissing
	}
	observability.RecordWeatherQuery("save", city)

	r := *reading
	r.City = city
	if r.Unit == "" {
		r.Unit = models.UnitCelsius
	}
	return s.cache.Put(ctx, r)
}

// readingCity prefers the provider's canonical location name.
func readingCity(env models.ForecastEnvelope, requested string) string {
	if name := strings.TrimSpace(env.Location.Name); name != "" {
		return name
	}
	return requested
}
