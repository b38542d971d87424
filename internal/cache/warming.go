package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer. A forecast lookup on a miss writes the
// cache, so fetching is warming. Declared here to avoid a dependency on the service package.
type ForecastFetcher interface {
	GetForecast(ctx context.Context, city string, t time.Time) (models.WeatherReading, error)
}

// CacheWarmer prefetches next-hour forecasts for a list of cities.
type CacheWarmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
	now     func() time.Time
	loc     *time.Location
	timeout time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. timeout bounds one warm run (0 means no bound).
func NewCacheWarmer(fetcher ForecastFetcher, logger *zap.Logger, timeout time.Duration) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, now: time.Now, loc: time.Local, timeout: timeout}
}

// SetLocation sets the zone the target hour is picked in. Use the zone request date-times are
// parsed in, so warmed keys are the ones lookups hit.
func (w *CacheWarmer) SetLocation(loc *time.Location) {
	if loc != nil {
		w.loc = loc
	}
}

// SetClock overrides the time source used to pick the warm target hour.
func (w *CacheWarmer) SetClock(now func() time.Time) {
	w.now = now
}

// TargetHour is the start of the wall-clock hour after now, in now's location.
func TargetHour(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
}

// Warm fetches the next-hour forecast for each city concurrently.
// Returns an error if any city failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	if len(cities) == 0 {
		return nil
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	target := TargetHour(w.now().In(w.loc))
	w.logger.Info("warming cache", zap.Int("cities", len(cities)), zap.Time("target", target))

	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetForecast(ctx, city, target); err != nil {
				observability.CacheWarmTotal.WithLabelValues("error").Inc()
				errCh <- fmt.Errorf("warm %s: %w", city, err)
				return
			}
			observability.CacheWarmTotal.WithLabelValues("success").Inc()
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", time.Since(start).Seconds()))
	if len(errs) > 0 {
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs Warm immediately and then every interval on a background scheduler.
// Runs never overlap. Call Stop during shutdown.
func (w *CacheWarmer) Start(cities []string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warm interval must be positive, got %s", interval)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("cache warmer already started")
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		if err := w.Warm(context.Background(), cities); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warm: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the scheduler. Safe to call when not started.
func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}
