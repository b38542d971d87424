package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// HeaderName carries "<login>;<password>".
const HeaderName = "Own-Auth-UserName"

// ErrAuthUnavailable means the auth service could not give an answer. Callers treat it as not authorized.
var ErrAuthUnavailable = errors.New("auth service unavailable")

// Credentials are parsed per request and never stored.
type Credentials struct {
	Login    string
	Password string
}

// String redacts the password so credentials are safe in log fields.
func (c Credentials) String() string {
	return c.Login + ";***"
}

// ParseHeader splits "<login>;<password>". Exactly one separator is accepted and both parts
// must be non-empty; anything else is not checked against the auth service.
func ParseHeader(value string) (Credentials, bool) {
	parts := strings.Split(value, ";")
	if len(parts) != 2 {
		return Credentials{}, false
	}
	login := strings.TrimSpace(parts[0])
	if login == "" || parts[1] == "" {
		return Credentials{}, false
	}
	return Credentials{Login: login, Password: parts[1]}, true
}

// Authorizer decides whether credentials are valid.
type Authorizer interface {
	Authorize(ctx context.Context, c Credentials) (bool, error)
}

// Config configures the gRPC gateway.
type Config struct {
	Addr             string
	Method           string // full method path; DefaultMethod when empty
	Timeout          time.Duration
	SecurityDisabled bool
}

const defaultTimeout = 2 * time.Second

// GRPCGateway calls the remote AuthService over a plaintext channel. One connection is shared
// by all requests; grpc-go multiplexes calls on it.
type GRPCGateway struct {
	conn     *grpc.ClientConn
	method   string
	timeout  time.Duration
	disabled bool
	logger   *zap.Logger
}

// NewGRPCGateway creates the channel lazily: no network I/O happens until the first call.
// With SecurityDisabled no channel is created and every check passes.
func NewGRPCGateway(cfg Config, logger *zap.Logger, opts ...grpc.DialOption) (*GRPCGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	g := &GRPCGateway{timeout: cfg.Timeout, disabled: cfg.SecurityDisabled, logger: logger}
	if cfg.SecurityDisabled {
		logger.Warn("security disabled: all auth checks pass")
		return g, nil
	}
	if cfg.Addr == "" {
		return nil, errors.New("auth address is required")
	}
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	if _, _, err := splitMethod(cfg.Method); err != nil {
		return nil, err
	}
	if err := loadDescriptors(); err != nil {
		return nil, err
	}
	g.method = cfg.Method
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create auth channel to %s: %w", cfg.Addr, err)
	}
	g.conn = conn
	return g, nil
}

// Authorize makes one AuthUser call bounded by the configured timeout. Any RPC failure
// returns false with ErrAuthUnavailable.
func (g *GRPCGateway) Authorize(ctx context.Context, c Credentials) (bool, error) {
	if g.disabled {
		observability.AuthChecksTotal.WithLabelValues("disabled").Inc()
		return true, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply := &wrapperspb.BoolValue{}
	if err := g.conn.Invoke(callCtx, g.method, newCreditsMessage(c), reply); err != nil {
		observability.AuthChecksTotal.WithLabelValues("unavailable").Inc()
		observability.LoggerOr(ctx, g.logger).Warn("auth call failed",
			zap.String("login", c.Login), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	if reply.GetValue() {
		observability.AuthChecksTotal.WithLabelValues("authorized").Inc()
	} else {
		observability.AuthChecksTotal.WithLabelValues("denied").Inc()
	}
	return reply.GetValue(), nil
}

// Close releases the channel. Safe when security is disabled.
func (g *GRPCGateway) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}
