package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"license-activation/internal/config"
	"license-activation/internal/domain"
	"license-activation/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var (
	_ repository.KV      = (*Client)(nil)
	_ repository.Counter = (*Client)(nil)
)

// Client adapts a Redis connection to the KV port. Every key is namespaced
// with the configured prefix.
type Client struct {
	cli    redis.UniversalClient
	prefix string
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{Addr: cfg.URL}
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Client{cli: c, prefix: cfg.KeyPrefix}, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.cli.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (c *Client) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.cli.Set(ctx, c.prefix+key, value, normalizeTTL(ttl)).Err()
}

func (c *Client) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.cli.SetNX(ctx, c.prefix+key, value, normalizeTTL(ttl)).Result()
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.cli.Del(ctx, c.prefix+key).Err()
}

// List walks SCAN until at least limit keys are collected or the iteration
// ends. SCAN works in batches, so a page may hold slightly more than limit
// keys; no key is dropped between pages.
func (c *Client) List(ctx context.Context, prefix, cursor string, limit int) (repository.KeyPage, error) {
	var pos uint64
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return repository.KeyPage{}, domain.ErrInvalidArgument
		}
		pos = n
	}
	count := int64(limit)
	if count <= 0 {
		count = 100
	}

	keys := make([]string, 0, limit)
	for {
		batch, next, err := c.cli.Scan(ctx, pos, c.prefix+prefix+"*", count).Result()
		if err != nil {
			return repository.KeyPage{}, err
		}
		for _, k := range batch {
			keys = append(keys, k[len(c.prefix):])
		}
		pos = next
		if pos == 0 {
			return repository.KeyPage{Keys: keys}, nil
		}
		if limit > 0 && len(keys) >= limit {
			return repository.KeyPage{Keys: keys, Cursor: strconv.FormatUint(pos, 10)}, nil
		}
	}
}

// incrScript increments KEYS[1] and gives it a TTL of ARGV[1] ms whenever
// it has none, in one round trip.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if tonumber(ARGV[1]) > 0 and redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Incr bumps a counter, setting its TTL to window when it has none.
func (c *Client) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.cli, []string{c.prefix + key}, window.Milliseconds()).Int64()
}

func (c *Client) Close() error { return c.cli.Close() }

func normalizeTTL(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
