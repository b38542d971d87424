package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

func TestForecastCoalescer_SharesOneCall(t *testing.T) {
	c := newForecastCoalescer(5 * time.Second)
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (models.WeatherReading, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.NewForecastReading("London", 21.5, time.Now()), nil
	}

	var wg sync.WaitGroup
	results := make([]models.WeatherReading, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.do(context.Background(), "london2024:06:01:14", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil || results[i].Temperature != 21.5 {
			t.Errorf("caller %d = %+v, %v", i, results[i], errs[i])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn calls = %d, want 1", got)
	}
}

func TestForecastCoalescer_ErrorPropagation(t *testing.T) {
	c := newForecastCoalescer(time.Second)
	wantErr := errors.New("api failure")

	_, err := c.do(context.Background(), "k", func(ctx context.Context) (models.WeatherReading, error) {
		return models.WeatherReading{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("do() error = %v, want %v", err, wantErr)
	}
}

func TestForecastCoalescer_WaitTimeout(t *testing.T) {
	c := newForecastCoalescer(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	_, err := c.do(context.Background(), "k", func(ctx context.Context) (models.WeatherReading, error) {
		<-release
		return models.WeatherReading{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("do() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestForecastCoalescer_SharedFetchSurvivesCallerCancel(t *testing.T) {
	c := newForecastCoalescer(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetchCtxErr := make(chan error, 1)
	_, _ = c.do(ctx, "k", func(fetchCtx context.Context) (models.WeatherReading, error) {
		fetchCtxErr <- fetchCtx.Err()
		return models.WeatherReading{}, nil
	})
	select {
	case err := <-fetchCtxErr:
		if err != nil {
			t.Errorf("shared fetch context error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shared fetch did not run")
	}
}
