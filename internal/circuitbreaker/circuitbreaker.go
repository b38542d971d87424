package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the breaker rejects the request.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // probe requests allowed (and needed) in half-open
	Timeout          time.Duration // open duration before probing
	Component        string
	OnStateChange    func(from, to State) // optional, for metrics
}

// CircuitBreaker protects upstream calls by opening after consecutive failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a CircuitBreaker. Zero values fall back to 5 failures, 2 probes, 30s.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs fn when the circuit allows it. A rejected call returns ErrOpen without running fn.
// Cancellation of ctx is not counted as an upstream failure.
func (c *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	var callErr error
	_, err := c.cb.Execute(func() (interface{}, error) {
		callErr = fn()
		if callErr != nil && ctx.Err() != nil {
			return nil, nil
		}
		return nil, callErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	if err != nil {
		return err
	}
	return callErr
}

// State returns the current state (for metrics and health).
func (c *CircuitBreaker) State() State {
	return fromGobreaker(c.cb.State())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
