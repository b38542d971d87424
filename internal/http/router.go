package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/auth"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// RouterConfig carries the middleware dependencies for NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	InFlight       *InFlightTracker
	Limiter        *rate.Limiter
	Authorizer     auth.Authorizer
	AuthMode       string
	RequestTimeout time.Duration
}

// NewRouter mounts /health, /metrics and the /v1 weather API. The API subrouter runs, in order:
// outcome tracking, rate limiting, the auth gate and the request deadline.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(cfg.InFlight))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(OutcomeMiddleware(h.traffic))
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.Authorizer != nil {
		api.Use(AuthMiddleware(cfg.Authorizer, cfg.AuthMode))
	}
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/current", h.GetCurrent).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.PutForecast).Methods(http.MethodPut)
	return router
}
