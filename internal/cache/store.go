package cache

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrCacheUnavailable is returned when the backing store cannot be reached or rejects a write.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Store is a byte-oriented key-value store. Entries carry no expiry: they live until the
// backend evicts or a later Set overwrites them. Get returns (nil, false, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by config cache.backend.
const (
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendInMemory  = "in_memory"
)

func categorizeStoreError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no servers"), strings.Contains(msg, "closed"):
		return "connection"
	case strings.Contains(msg, "decode"):
		return "decode"
	}
	return "unknown"
}
