package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// Error codes in the JSON error body.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeCacheUnavailable    = "CACHE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeAuthUnavailable     = "AUTH_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}} using the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// classifyError maps a facade error to status, code and client-facing message.
// Deadline is checked first: a timed-out provider call also matches ErrUpstream.
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, validation.ErrValidation):
		return http.StatusBadRequest, CodeInvalidRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout, "Request timed out"
	case errors.Is(err, cache.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, CodeCacheUnavailable, "Cache unavailable"
	case errors.Is(err, client.ErrUpstream):
		return http.StatusBadGateway, CodeUpstreamUnavailable, "Unable to fetch weather data"
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal error"
	}
}

// writeServiceError maps err and logs server-side failures with full detail (upstream body included).
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			zap.String("code", code),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("code", code), zap.Error(err))
	}
	writeError(w, r, status, code, message)
}
