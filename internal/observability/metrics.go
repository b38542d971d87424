package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: p95/p99 increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider calls per endpoint (current, forecast) and status label.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Provider failures by error category.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Forecast cache lookups by result (hit, miss, error).
	CacheLookupsTotal *prometheus.CounterVec

	// Cache store errors by operation and category. Get errors are served as misses.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache store latency by operation and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for the same key (no single-flight by default).
	CacheStampedeDetectedTotal prometheus.Counter

	// Requests that shared another caller's upstream fetch (coalescing enabled only).
	RequestCoalescingHitsTotal prometheus.Counter

	// Cache warm attempts by result.
	CacheWarmTotal *prometheus.CounterVec

	// Weather lookups by kind (current, forecast, save).
	WeatherQueriesTotal *prometheus.CounterVec

	// Per-city forecast lookups (allow-list; others go to "other").
	WeatherQueriesByCityTotal *prometheus.CounterVec

	// Auth gateway outcomes (authorized, denied, unavailable, disabled, missing_header).
	AuthChecksTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiCallsTotal", Help: "Total number of weather provider calls"},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiErrorsTotal", Help: "Weather provider failures by category"},
		[]string{"category"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheLookupsTotal", Help: "Forecast cache lookups by result"},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheErrorsTotal", Help: "Cache store errors by operation and category"},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache store latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "outcome"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheStampedeDetectedTotal", Help: "Cache misses that overlapped another in-flight miss for the same key"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "requestCoalescingHitsTotal", Help: "Forecast lookups served by a shared upstream fetch"},
	)
	CacheWarmTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheWarmTotal", Help: "Cache warm attempts by result"},
		[]string{"result"},
	)
	WeatherQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherQueriesTotal", Help: "Total number of weather lookups by kind"},
		[]string{"kind"},
	)
	WeatherQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherQueriesByCityTotal", Help: "Weather lookups by city (allow-list; others use city=other)"},
		[]string{"city"},
	)
	AuthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "authChecksTotal", Help: "Auth gateway outcomes"},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Total number of requests denied by rate limiter (429)"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open"},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheLookupsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, RequestCoalescingHitsTotal, CacheWarmTotal,
		WeatherQueriesTotal, WeatherQueriesByCityTotal,
		AuthChecksTotal, RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordWeatherQuery counts a lookup of the given kind for city.
func RecordWeatherQuery(kind, city string) {
	WeatherQueriesTotal.WithLabelValues(kind).Inc()
	WeatherQueriesByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// MetricCityLabel returns the normalized city when tracked, otherwise "other".
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordCircuitBreakerTransition records a state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
