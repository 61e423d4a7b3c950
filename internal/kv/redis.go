package kv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a Redis connection
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to Redis. url accepts either a redis:// / rediss:// URL
// or a bare host:port; token overrides any password embedded in the URL.
// Connectivity is verified so startup fails fast.
func NewRedis(ctx context.Context, url, token string, db int) (*Redis, error) {
	if url == "" {
		return nil, fmt.Errorf("kv url missing")
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid kv url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url, DB: db}
	}
	if token != "" {
		opts.Password = token
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger := slog.Default().With("component", "kv")
	logger.Info("kv store connected", "addr", opts.Addr)

	return &Redis{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for script execution
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	r.logger.Info("kv store closed")
	return nil
}

// HealthCheck verifies Redis connectivity
func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv health check failed: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Miss is not an error
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del failed: %w", err)
	}
	return removed, nil
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := r.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget failed for key %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	if err := r.client.HSet(ctx, key, flat...).Err(); err != nil {
		return fmt.Errorf("redis hset failed for key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	removed, err := r.client.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel failed for key %s: %w", key, err)
	}
	return removed, nil
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed for key %s: %w", key, err)
	}
	return fields, nil
}

func (r *Redis) HLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.HLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen failed for key %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	flat := make([]interface{}, len(values))
	for i, v := range values {
		flat[i] = v
	}
	if err := r.client.LPush(ctx, key, flat...).Err(); err != nil {
		return fmt.Errorf("redis lpush failed for key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := r.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("redis ltrim failed for key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed for key %s: %w", key, err)
	}
	return values, nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen failed for key %s: %w", key, err)
	}
	return n, nil
}

// Keys returns all keys matching a glob pattern, via SCAN to avoid blocking
// the server on large keyspaces.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan failed for pattern %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// DeletePattern deletes all keys matching a glob pattern
func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := r.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed for pattern %s: %w", pattern, err)
	}

	r.logger.Info("kv pattern delete", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}
