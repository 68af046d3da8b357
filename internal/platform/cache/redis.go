package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisPrefix    = "catalog"
	defaultRedisOpTimeout = 250 * time.Millisecond
)

// RedisConfig configures a Redis-backed cache.
type RedisConfig struct {
	URL              string
	Password         string
	Prefix           string
	TTL              time.Duration
	OperationTimeout time.Duration
}

// Redis stores JSON encoded values in Redis with a TTL. Errors on either path
// are logged and reported as misses.
type Redis[V any] struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewRedisClient parses the connection URL and builds a client.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("cache: redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	return redis.NewClient(opts), nil
}

// NewRedis wraps an existing client. The client is owned by the caller.
func NewRedis[V any](client redis.UniversalClient, namespace string, cfg RedisConfig, logger *zap.Logger) (*Redis[V], error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if namespace = strings.TrimSpace(namespace); namespace != "" {
		prefix = prefix + ":" + namespace
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultRedisOpTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis[V]{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		opTimeout: timeout,
		logger:    logger,
	}, nil
}

// Get loads and decodes the entry for key.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		r.logger.Warn("cache: redis payload undecodable", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return value, true
}

// Set encodes and stores value with the configured TTL.
func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("cache: redis payload unencodable", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		r.logger.Warn("cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Ping checks connectivity.
func (r *Redis[V]) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis[V]) key(key string) string {
	return r.prefix + ":" + key
}
