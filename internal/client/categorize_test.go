package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("%w: forecast request timeout: %w", ErrUpstream, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"unauthorized", &UpstreamError{StatusCode: 401, Body: "API key is invalid."}, ErrorCategoryInvalidAPIKey},
		{"forbidden", &UpstreamError{StatusCode: 403}, ErrorCategoryInvalidAPIKey},
		{"rate limited", &UpstreamError{StatusCode: 429}, ErrorCategoryRateLimited},
		{"no location", &UpstreamError{StatusCode: 400, Body: `{"error":{"code":1006,"message":"No matching location found."}}`}, ErrorCategoryLocationNotFound},
		{"bad request", &UpstreamError{StatusCode: 400, Body: "bad"}, ErrorCategoryUpstream4xx},
		{"server error", &UpstreamError{StatusCode: 500, Body: "boom"}, ErrorCategoryUpstream5xx},
		{"malformed", fmt.Errorf("%w: no forecast days", ErrMalformedResponse), ErrorCategoryMalformed},
		{"parse", fmt.Errorf("%w: parse forecast response: %w", ErrUpstream, errors.New("unexpected EOF")), ErrorCategoryParsing},
		{"circuit open", fmt.Errorf("%w: forecast: circuit breaker open", ErrUpstream), ErrorCategoryCircuitOpen},
		{"connection", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("weird"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
