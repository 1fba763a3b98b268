// Package redisstore implements repositories.QuotaStore on Redis. Every
// gateway instance shares the same Redis, which makes it the single source
// of truth for quota counters and the token denylist.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/firmauth/config"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/repositories"
	"go.uber.org/zap"
)

// NewClient opens a Redis client from configuration and verifies it with a ping
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}

// floorAtZeroScript resets a negative counter to zero in one step.
// KEYS[1] = key
// ARGV[1] = expiration in seconds
var floorAtZeroScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current < 0 then
		redis.call('SET', KEYS[1], 0, 'EX', ARGV[1])
		return 0
	end
	return current
`)

// QuotaStore implements repositories.QuotaStore
type QuotaStore struct {
	client redis.Cmdable
	prefix string
	logger *zap.Logger
}

var _ repositories.QuotaStore = (*QuotaStore)(nil)

// NewQuotaStore creates a quota store. prefix is prepended to every key.
func NewQuotaStore(client redis.Cmdable, prefix string, logger *zap.Logger) *QuotaStore {
	return &QuotaStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *QuotaStore) key(k string) string {
	return s.prefix + k
}

// Incr increments the counter at key and returns the new value
func (s *QuotaStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis incr: %w", err)
	}

	start := time.Now()
	n, err := s.client.Incr(ctx, s.key(key)).Result()
	observability.ObserveStoreOp("incr", start, err)
	if err != nil {
		return 0, fmt.Errorf("redis incr error: %w", err)
	}
	return n, nil
}

// Decr decrements the counter at key and returns the new value
func (s *QuotaStore) Decr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis decr: %w", err)
	}

	start := time.Now()
	n, err := s.client.Decr(ctx, s.key(key)).Result()
	observability.ObserveStoreOp("decr", start, err)
	if err != nil {
		return 0, fmt.Errorf("redis decr error: %w", err)
	}
	return n, nil
}

// FloorAtZero resets the counter at key to zero when it is negative and
// returns the resulting value. A non-negative counter is left untouched, so a
// concurrent increment is never overwritten.
func (s *QuotaStore) FloorAtZero(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis floor: %w", err)
	}

	secs := int64(ttl.Seconds())
	if secs < 1 {
		secs = 1
	}

	start := time.Now()
	result, err := floorAtZeroScript.Run(ctx, s.client, []string{s.key(key)}, secs).Result()
	observability.ObserveStoreOp("floor", start, err)
	if err != nil {
		return 0, fmt.Errorf("redis script error: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("redis script returned unexpected type: %T", result)
	}
	return n, nil
}

// Expire sets the time to live of key
func (s *QuotaStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis expire: %w", err)
	}

	start := time.Now()
	err := s.client.Expire(ctx, s.key(key), ttl).Err()
	observability.ObserveStoreOp("expire", start, err)
	if err != nil {
		return fmt.Errorf("redis expire error: %w", err)
	}
	return nil
}

// Get returns the counter at key and whether it exists
func (s *QuotaStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, fmt.Errorf("context error before redis get: %w", err)
	}

	start := time.Now()
	n, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStoreOp("get", start, nil)
		return 0, false, nil
	}
	observability.ObserveStoreOp("get", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("redis get error: %w", err)
	}
	return n, true, nil
}

// MultiGet returns the counters at keys in order; missing keys are nil
func (s *QuotaStore) MultiGet(ctx context.Context, keys ...string) ([]*int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before redis mget: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	start := time.Now()
	vals, err := s.client.MGet(ctx, prefixed...).Result()
	observability.ObserveStoreOp("mget", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis mget error: %w", err)
	}

	out := make([]*int64, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value at %s: %w", keys[i], err)
		}
		out[i] = &n
	}
	return out, nil
}

// SetWithTTL stores value at key with the given time to live
func (s *QuotaStore) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis set: %w", err)
	}

	start := time.Now()
	err := s.client.Set(ctx, s.key(key), value, ttl).Err()
	observability.ObserveStoreOp("set", start, err)
	if err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Exists reports whether key is present
func (s *QuotaStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error before redis exists: %w", err)
	}

	start := time.Now()
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	observability.ObserveStoreOp("exists", start, err)
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings Redis
func (s *QuotaStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
