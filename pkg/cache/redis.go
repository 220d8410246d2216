package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	// KeyPrefix namespaces every key so several services can share one database.
	KeyPrefix string
	// Tracing instruments the client with OpenTelemetry spans.
	Tracing        bool
	TracerProvider trace.TracerProvider
}

func (c *RedisConfig) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "airbrake:"
	}
}

func (c *RedisConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return errors.New("redis: missing Addr")
	}
	return nil
}

type redisCache struct {
	client *redis.Client
	prefix string
}

type RedisOption func(*redis.Options)

func WithPoolSize(size int) RedisOption {
	return func(o *redis.Options) {
		o.PoolSize = size
	}
}

func WithReadTimeout(timeout time.Duration) RedisOption {
	return func(o *redis.Options) {
		o.ReadTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) RedisOption {
	return func(o *redis.Options) {
		o.WriteTimeout = timeout
	}
}

// NewRedisCacheFromConfig connects and pings before returning, so a bad address
// fails at construction rather than on the first notice.
func NewRedisCacheFromConfig(cfg RedisConfig, opts ...RedisOption) (Cache, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, errors.New("redis: cache is not enabled")
	}

	options := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)
	if cfg.Tracing {
		var topts []redisotel.TracingOption
		if cfg.TracerProvider != nil {
			topts = append(topts, redisotel.WithTracerProvider(cfg.TracerProvider))
		}
		if err := redisotel.InstrumentTracing(client, topts...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: instrument tracing: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	return NewRedisCache(client, cfg.KeyPrefix), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, prefix string) Cache {
	return &redisCache{client: client, prefix: prefix}
}

func (r *redisCache) key(key string) string { return r.prefix + key }

func (r *redisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if ctx == nil {
		return false, ErrInvalidContext
	}
	if key == "" {
		return false, ErrInvalidKey
	}
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx error: %w", err)
	}
	return ok, nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	result := r.client.Del(ctx, r.key(key))
	if err := result.Err(); err != nil {
		return err
	}
	if result.Val() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Flush removes only keys under the configured prefix.
func (r *redisCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan error: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
