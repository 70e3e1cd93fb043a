// Package cache defines a common interface for cache implementations that can
// be used by PrimalityService implementations to avoid repeating expensive
// primality decisions.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/gomodule/redigo/redis"
	"golang.org/x/crypto/blake2b"
)

// Cache defines an interface for a cache implementation that can be used to
// store the results of a calculation for subsequent lookup requests.
type Cache interface {
	// Return the string that was set for key (or "" if unset) and an Error
	// if the implementation failed.
	// NOTE: a cache miss *should not* return an error.
	GetValue(ctx context.Context, key string) (string, error)
	// Store the value string with the provided key, returning an error if
	// the implementation failed.
	SetValue(ctx context.Context, key string, value string) error
}

// Key returns a fixed-length cache key for a calculation of the given kind over
// values. Candidates can be thousands of bits long, so the key is a BLAKE2b-256
// digest of the kind, the iteration count and the big-endian bytes of each
// value, prefixed by kind for readability.
func Key(kind string, iterations int, values ...*big.Int) string {
	// A nil key never fails for blake2b.New256.
	hash, _ := blake2b.New256(nil)
	hash.Write([]byte(kind))
	hash.Write([]byte{0})
	hash.Write([]byte(strconv.Itoa(iterations)))
	for _, value := range values {
		bytes := value.Bytes()
		// Length and sign prefixes keep adjacent values from colliding.
		hash.Write([]byte{0, byte(value.Sign() + 1)})
		hash.Write([]byte(strconv.Itoa(len(bytes))))
		hash.Write([]byte{0})
		hash.Write(bytes)
	}
	return fmt.Sprintf("%s:%s", kind, hex.EncodeToString(hash.Sum(nil)))
}

// NoopCache implements Cache interface without any real cacheing.
type NoopCache struct{}

// Always returns an empty string and no error for every key.
func (n *NoopCache) GetValue(ctx context.Context, key string) (string, error) {
	return "", nil
}

// Ignores the value and returns nil error.
func (n *NoopCache) SetValue(ctx context.Context, key string, value string) error {
	return nil
}

// Creates a no-operation Cache implementation that satisfies the interface
// requirements without performing any real caching. All values are silently
// dropped by SetValue and calls to GetValue always return an empty string.
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// RedisCache implements Cache interface backed by a Redis store.
type RedisCache struct {
	*redis.Pool
	// The logr.Logger implementation to use
	logger logr.Logger
	// An optional expiry applied to every stored value; zero disables expiry.
	ttl time.Duration
}

// Defines the function signature for RedisCache options.
type RedisCacheOption func(*RedisCache)

// Use the supplied logger for cache operations.
func WithLogger(logger logr.Logger) RedisCacheOption {
	return func(r *RedisCache) {
		r.logger = logger
	}
}

// Expire stored values after ttl.
func WithTTL(ttl time.Duration) RedisCacheOption {
	return func(r *RedisCache) {
		r.ttl = ttl
	}
}

// Limit the number of idle connections kept by the pool.
func WithMaxIdle(maxIdle int) RedisCacheOption {
	return func(r *RedisCache) {
		r.MaxIdle = maxIdle
	}
}

// Return a new Cache implementation using Redis
func NewRedisCache(ctx context.Context, endpoint string, options ...RedisCacheOption) *RedisCache {
	cache := &RedisCache{
		Pool: &redis.Pool{
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", endpoint)
			},
		},
		logger: logr.Discard(),
	}
	for _, option := range options {
		option(cache)
	}
	return cache
}

// Returns the string value stored in Redis under key, if present, or an empty string.
func (r *RedisCache) GetValue(ctx context.Context, key string) (string, error) {
	logger := r.logger.V(1).WithValues("key", key)
	logger.Info("GetValue: enter")
	conn, err := r.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	value, err := redis.String(conn.Do("GET", key))
	if err == redis.ErrNil {
		// A cache miss is *NOT* an error to propagate
		logger.Info("Value is not cached")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis GET failed: %w", err)
	}
	logger.Info("GetValue: exit", "value", value)
	return value, nil
}

// Store the string key:value pair in Redis.
func (r *RedisCache) SetValue(ctx context.Context, key string, value string) error {
	logger := r.logger.V(1).WithValues("key", key, "value", value)
	logger.Info("SetValue: enter")
	conn, err := r.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()
	if r.ttl > 0 {
		_, err = conn.Do("SET", key, value, "PX", r.ttl.Milliseconds())
	} else {
		_, err = conn.Do("SET", key, value)
	}
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}
