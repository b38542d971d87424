package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// WeatherClient fetches current and forecast envelopes from the weather provider.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, city string) (models.ForecastEnvelope, error)
	FetchForecast(ctx context.Context, city string, daysAhead int) (models.ForecastEnvelope, error)
}

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrUpstream matches every provider failure: non-2xx status, transport error, bad payload.
	ErrUpstream = errors.New("upstream failure")
	// ErrMalformedResponse marks a payload that decoded but cannot answer the query.
	ErrMalformedResponse = fmt.Errorf("%w: malformed upstream response", ErrUpstream)
)

// UpstreamError is a non-2xx provider response. Body holds the raw response for diagnostics.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

const (
	endpointCurrent  = "current"
	endpointForecast = "forecast"

	// HourlyEntries is the number of hourly temperatures in a well-formed forecast day.
	HourlyEntries = 24

	maxBodyBytes = 1 << 20
)

// WeatherAPIClient talks to a weatherapi.com compatible provider. No retries: a failed
// call is returned to the caller.
type WeatherAPIClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewWeatherAPIClient validates the key and base URL and returns a client whose calls are
// bounded by timeout.
func NewWeatherAPIClient(apiKey, baseURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every provider call in cb. Pass nil to disable.
func (c *WeatherAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// FetchCurrent calls {baseURL}/current.json.
func (c *WeatherAPIClient) FetchCurrent(ctx context.Context, city string) (models.ForecastEnvelope, error) {
	params := c.defaultParams(city)
	return c.call(ctx, endpointCurrent, params)
}

// FetchForecast calls {baseURL}/forecast.json with days=daysAhead.
func (c *WeatherAPIClient) FetchForecast(ctx context.Context, city string, daysAhead int) (models.ForecastEnvelope, error) {
	params := c.defaultParams(city)
	params.Set("days", strconv.Itoa(daysAhead))
	return c.call(ctx, endpointForecast, params)
}

func (c *WeatherAPIClient) defaultParams(city string) url.Values {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", city)
	params.Set("aqi", "no")
	return params
}

func (c *WeatherAPIClient) call(ctx context.Context, endpoint string, params url.Values) (models.ForecastEnvelope, error) {
	var env models.ForecastEnvelope
	do := func() error {
		var err error
		env, err = c.callAPI(ctx, endpoint, params)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, do)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, err)
		}
	} else {
		err = do()
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return models.ForecastEnvelope{}, err
	}
	return env, nil
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, endpoint string, params url.Values) (models.ForecastEnvelope, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return models.ForecastEnvelope{}, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.ForecastEnvelope{}, fmt.Errorf("%w: %s request timeout: %w", ErrUpstream, endpoint, err)
		}
		return models.ForecastEnvelope{}, fmt.Errorf("%w: %s http request failed: %w", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.ForecastEnvelope{}, fmt.Errorf("%w: read %s response body: %w", ErrUpstream, endpoint, err)
	}
	if resp.StatusCode >= 300 {
		return models.ForecastEnvelope{}, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env models.ForecastEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ForecastEnvelope{}, fmt.Errorf("%w: parse %s response: %w", ErrUpstream, endpoint, err)
	}
	return env, nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint + ".json")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
