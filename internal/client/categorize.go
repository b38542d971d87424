package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx      ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryMalformed        ErrorCategory = "malformed"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps a client error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		switch {
		case upErr.StatusCode == http.StatusUnauthorized || upErr.StatusCode == http.StatusForbidden:
			return ErrorCategoryInvalidAPIKey
		case upErr.StatusCode == http.StatusTooManyRequests:
			return ErrorCategoryRateLimited
		case upErr.StatusCode == http.StatusBadRequest && strings.Contains(upErr.Body, "No matching location"):
			return ErrorCategoryLocationNotFound
		case upErr.StatusCode >= 500:
			return ErrorCategoryUpstream5xx
		default:
			return ErrorCategoryUpstream4xx
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorCategoryMalformed
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}

	errStr := err.Error()
	if strings.Contains(errStr, circuitbreaker.ErrOpen.Error()) {
		return ErrorCategoryCircuitOpen
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
