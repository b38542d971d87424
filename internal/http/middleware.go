package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/auth"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
)

// Auth modes.
const (
	// AuthModePermissive lets requests without valid credentials through unauthenticated (logged).
	AuthModePermissive = "permissive"
	// AuthModeEnforce rejects them with 401.
	AuthModeEnforce = "enforce"
)

// CorrelationIDMiddleware reads or generates X-Correlation-ID and stores it, with a logger
// carrying it, on the request context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := observability.WithCorrelationID(r.Context(), corrID)
			ctx = observability.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request count, latency and in-flight gauge per route template.
// inflight may be nil.
func MetricsMiddleware(inflight *InFlightTracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer inflight.Begin()()

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := routeTemplate(r)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// OutcomeMiddleware feeds the health tracker: 429 is a denial, 5xx a failure, anything else a success.
func OutcomeMiddleware(tracker *traffic.Tracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)
			switch {
			case recorder.statusCode == http.StatusTooManyRequests:
				tracker.Record(traffic.Denied)
			case recorder.statusCode >= http.StatusInternalServerError:
				tracker.Record(traffic.Failure)
			default:
				tracker.Record(traffic.Success)
			}
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream calls
// return context.DeadlineExceeded and the handler answers 504.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				observability.LoggerFromContext(r.Context()).Debug("rate limit denied")
				observability.RateLimitDeniedTotal.Inc()
				writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware checks the Own-Auth-UserName header against authz. Authenticated requests carry
// the login on their context. In permissive mode failures are logged and the request proceeds
// unauthenticated; in enforce mode they end with 401.
func AuthMiddleware(authz auth.Authorizer, mode string) mux.MiddlewareFunc {
	enforce := mode == AuthModeEnforce
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.LoggerFromContext(r.Context())

			creds, ok := auth.ParseHeader(r.Header.Get(auth.HeaderName))
			if !ok {
				observability.AuthChecksTotal.WithLabelValues("missing_header").Inc()
				logger.Warn("empty or malformed auth header")
				if enforce {
					writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Missing or malformed "+auth.HeaderName+" header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := authz.Authorize(r.Context(), creds)
			if err != nil || !allowed {
				code, message := CodeUnauthorized, "Invalid credentials"
				if err != nil {
					code, message = CodeAuthUnavailable, "Authentication service unavailable"
				}
				logger.Warn("request not authenticated", zap.String("login", creds.Login), zap.String("code", code), zap.Error(err))
				if enforce {
					writeError(w, r, http.StatusUnauthorized, code, message)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithLogin(r.Context(), creds.Login)))
		})
	}
}
