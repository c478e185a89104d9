package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"strata/internal/logging"
)

type RedisConfig struct {
	URL      string        `koanf:"url"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
	MaxBytes int64         `koanf:"max_bytes"`
}

// RedisCache holds small files as plain string values. Files larger than
// MaxBytes are refused.
type RedisCache struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxBytes int64
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.L().Warn("redis cache: ping failed", "addr", opts.Addr, "err", err)
	}
	return NewRedisCacheWithClient(client, cfg), nil
}

func NewRedisCacheWithClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "strata:cache:"
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, maxBytes: cfg.MaxBytes}
}

func (c *RedisCache) key(url string) string { return c.prefix + Key(url) }

func (c *RedisCache) Exists(ctx context.Context, url string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(url)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Put(ctx context.Context, url string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > c.maxBytes {
		return fmt.Errorf("redis cache: %s exceeds %d bytes", url, c.maxBytes)
	}
	return c.client.Set(ctx, c.key(url), data, c.ttl).Err()
}

func (c *RedisCache) Open(ctx context.Context, url string) (File, error) {
	data, err := c.client.Get(ctx, c.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
	}
	if err != nil {
		return nil, err
	}
	return NewMemFile(url, data), nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
