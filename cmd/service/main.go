package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/auth"
	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
	httphandler "github.com/kjstillabower/weather-lookup-service/internal/http"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const breakerComponent = "weather_api"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	go func() {
		logger.Info("server starting", zap.String("addr", a.srv.Addr), zap.String("version", version))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	a.shutdown()
	logger.Info("shutdown complete")
}

// app is the wired service: every long-lived resource built in main and released on shutdown.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	srv      *http.Server
	store    cache.Store
	gateway  *auth.GRPCGateway
	warmer   *cache.CacheWarmer
	inflight *httphandler.InFlightTracker
	state    *lifecycle.State
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	weatherClient, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	var upstreamOpen func() bool
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        breakerComponent,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", breakerComponent),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		upstreamOpen = func() bool { return cb.State() == circuitbreaker.StateOpen }
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	forecastCache := cache.NewForecastCache(store, logger)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMaxForecastDays(cfg.ForecastMaxDays),
	}
	if cfg.CoalesceEnabled {
		opts = append(opts, service.WithCoalescing(cfg.CoalesceTimeout))
		logger.Info("forecast coalescing enabled", zap.Duration("timeout", cfg.CoalesceTimeout))
	}
	weatherService := service.NewWeatherService(weatherClient, forecastCache, opts...)

	gateway, err := auth.NewGRPCGateway(auth.Config{
		Addr:             cfg.AuthAddr,
		Method:           cfg.AuthMethod,
		Timeout:          cfg.AuthTimeout,
		SecurityDisabled: cfg.AuthSecurityDisabled,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("auth gateway: %w", err)
	}

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	state := lifecycle.New()
	tracker := traffic.NewTracker()
	inflight := &httphandler.InFlightTracker{}
	health := &httphandler.HealthConfig{
		OverloadWindow:    cfg.OverloadWindow,
		OverloadDeniedPct: cfg.OverloadDeniedPct,
		DegradedWindow:    cfg.DegradedWindow,
		DegradedErrorPct:  cfg.DegradedErrorPct,
		CachePing:         forecastCache.Ping,
		UpstreamOpen:      upstreamOpen,
		Version:           version,
	}
	handler := httphandler.NewHandler(weatherService, health, tracker, state, cfg.ForecastLocation, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		InFlight:       inflight,
		Limiter:        limiter,
		Authorizer:     gateway,
		AuthMode:       cfg.AuthMode,
		RequestTimeout: cfg.RequestTimeout,
	})

	a := &app{
		cfg:    cfg,
		logger: logger,
		srv: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  cfg.ServerReadTimeout,
			WriteTimeout: cfg.ServerWriteTimeout,
		},
		store:    store,
		gateway:  gateway,
		inflight: inflight,
		state:    state,
	}

	if cfg.WarmEnabled {
		a.warmer = cache.NewCacheWarmer(weatherService, logger, cfg.WarmTimeout)
		a.warmer.SetLocation(cfg.ForecastLocation)
		if err := a.warmer.Start(cfg.WarmCities, cfg.WarmInterval); err != nil {
			a.release()
			return nil, fmt.Errorf("cache warmer: %w", err)
		}
		logger.Info("cache warming enabled",
			zap.Strings("cities", cfg.WarmCities), zap.Duration("interval", cfg.WarmInterval))
	}
	return a, nil
}

// newStore builds the cache backend named by cfg.CacheBackend.
func newStore(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		logger.Info("cache backend: redis",
			zap.String("addr", cfg.RedisAddr), zap.Int("pool_size", cfg.RedisPoolSize))
		return cache.NewRedisStore(cache.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			PoolTimeout:  cfg.RedisPoolTimeout,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		}), nil
	case config.BackendMemcached:
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns), nil
	case config.BackendInMemory:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// shutdown stops accepting requests, drains in-flight work, flushes logs and releases resources.
func (a *app) shutdown() {
	a.state.BeginShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown", zap.Error(err))
	}

	a.logger.Info("waiting for in-flight requests", zap.Int64("count", a.inflight.Count()))
	if err := a.inflight.Drain(ctx, a.cfg.DrainInterval); err != nil {
		a.logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", a.inflight.Count()))
	}

	a.release()

	if err := observability.FlushTelemetry(a.logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

func (a *app) release() {
	if a.warmer != nil {
		a.warmer.Stop()
	}
	if err := a.gateway.Close(); err != nil {
		a.logger.Error("auth channel close", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("cache store close", zap.Error(err))
	}
}
