package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyPrefix          = "weather:"
	maxMemcachedKeyLen = 250
)

// MemcachedStore implements Store using memcached. Items are written with expiration 0.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedKey prefixes k and falls back to a sha256 digest when the result would break the
// memcached key rules (length, whitespace or control bytes). City names may contain spaces.
func memcachedKey(k string) string {
	key := keyPrefix + k
	if len(key) > maxMemcachedKeyLen || !legalMemcachedKey(key) {
		sum := sha256.Sum256([]byte(k))
		return keyPrefix + hex.EncodeToString(sum[:])
	}
	return key
}

func legalMemcachedKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (s *MemcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := s.client.Get(memcachedKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key string, value []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.client.Set(&memcache.Item{
		Key:   memcachedKey(key),
		Value: value,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
