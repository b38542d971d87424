package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

const defaultDrainInterval = 50 * time.Millisecond

// InFlightTracker counts requests being served so shutdown can drain them. It also drives the
// httpRequestsInFlight gauge. A nil tracker only updates the gauge.
type InFlightTracker struct {
	count atomic.Int64
}

// Begin marks a request as started and returns the func that marks it done.
func (t *InFlightTracker) Begin() (done func()) {
	observability.HTTPRequestsInFlight.Inc()
	if t == nil {
		return observability.HTTPRequestsInFlight.Dec
	}
	t.count.Add(1)
	return func() {
		t.count.Add(-1)
		observability.HTTPRequestsInFlight.Dec()
	}
}

// Count returns the number of requests in flight.
func (t *InFlightTracker) Count() int64 {
	if t == nil {
		return 0
	}
	return t.count.Load()
}

// Drain polls every interval until no request is in flight or ctx ends.
func (t *InFlightTracker) Drain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for t.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
