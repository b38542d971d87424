package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// forecastCoalescer shares one upstream resolution among concurrent misses for the same key.
// The shared fetch runs detached from any single caller's cancellation; each caller waits at
// most timeout (or its own deadline) for the result.
type forecastCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newForecastCoalescer(timeout time.Duration) *forecastCoalescer {
	return &forecastCoalescer{timeout: timeout}
}

func (c *forecastCoalescer) do(ctx context.Context, key string, fn func(context.Context) (models.WeatherReading, error)) (models.WeatherReading, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
		if res.Err != nil {
			return models.WeatherReading{}, res.Err
		}
		return res.Val.(models.WeatherReading), nil
	case <-waitCtx.Done():
		return models.WeatherReading{}, waitCtx.Err()
	}
}
