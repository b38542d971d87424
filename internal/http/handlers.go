package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

const maxRequestBodyBytes = 1 << 16

// WeatherFacade is the service surface the handlers call. *service.WeatherService implements it.
type WeatherFacade interface {
	GetCurrent(ctx context.Context, city string) (models.WeatherReading, error)
	GetForecast(ctx context.Context, city string, t time.Time) (models.WeatherReading, error)
	SaveWeather(ctx context.Context, reading *models.WeatherReading) error
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// OverloadWindow and OverloadDeniedPct: overloaded when rate-limit denials reach this share of traffic.
	OverloadWindow    time.Duration
	OverloadDeniedPct int
	// DegradedWindow and DegradedErrorPct: degraded when server-side failures reach this share of served requests.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	// UpstreamOpen, when set, reports whether the provider circuit breaker is open.
	UpstreamOpen func() bool
	Version      string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   WeatherFacade
	health    *HealthConfig
	traffic   *traffic.Tracker
	lifecycle *lifecycle.State
	location  *time.Location
	validator *validation.Validator
	logger    *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. dt values without an offset are read in loc (UTC when nil).
func NewHandler(
	weather WeatherFacade,
	health *HealthConfig,
	tracker *traffic.Tracker,
	state *lifecycle.State,
	loc *time.Location,
	logger *zap.Logger,
) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:   weather,
		health:    health,
		traffic:   tracker,
		lifecycle: state,
		location:  loc,
		validator: validation.New(0, 0),
		logger:    logger,
	}
}

// GetCurrent handles GET /v1/current?city=.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	reading, err := h.weather.GetCurrent(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// GetForecast handles GET /v1/forecast?city=&dt=yyyy-MM-ddTHH:mm.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var at time.Time
	if dt := q.Get("dt"); dt != "" {
		var err error
		if at, err = models.ParseDateTime(dt, h.location); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}
	}
	reading, err := h.weather.GetForecast(r.Context(), q.Get("city"), at)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

type putForecastRequest struct {
	City        string   `json:"city" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Unit        string   `json:"unit" validate:"omitempty,oneof=celsius"`
	Date        string   `json:"date" validate:"required"`
}

// PutForecast handles PUT /v1/forecast. The body is written straight into the forecast cache.
func (h *Handler) PutForecast(w http.ResponseWriter, r *http.Request) {
	var body *putForecastRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	if body == nil {
		writeServiceError(w, r, service.ErrReadingMissing)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	at, err := models.ParseDateTime(body.Date, h.location)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	reading := models.NewForecastReading(body.City, *body.Temperature, at)
	if err := h.weather.SaveWeather(r.Context(), &reading); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.health != nil && h.health.Version != "" {
		version = h.health.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-lookup-service",
		"version":   version,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > cache unreachable > upstream breaker open > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{"cache": "healthy", "weatherApi": "healthy"}
	if h.lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.health == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	if h.health.CachePing != nil {
		if err := h.health.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable", checks}
		}
	}
	if h.health.UpstreamOpen != nil && h.health.UpstreamOpen() {
		checks["weatherApi"] = "unhealthy"
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open", checks}
	}
	if h.health.OverloadWindow > 0 && h.health.OverloadDeniedPct > 0 {
		if pct, ok := h.traffic.DeniedPct(h.health.OverloadWindow); ok && pct >= float64(h.health.OverloadDeniedPct) {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold", checks}
		}
	}
	if h.health.DegradedWindow > 0 && h.health.DegradedErrorPct > 0 {
		if pct, ok := h.traffic.FailurePct(h.health.DegradedWindow); ok && pct >= float64(h.health.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}
