package kv

import "context"

// Store is the key/value surface the coordination state lives behind:
// strings for the graph blob and its meta, hashes for locks and file shas,
// lists for the activity feed. Multi-key atomicity (the lock registry's
// all-or-nothing acquire) is not part of this interface; it belongs to the
// registry implementations.
type Store interface {
	// String operations
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) (removed int64, err error)

	// Hash operations
	HGet(ctx context.Context, key, field string) (value string, found bool, err error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) (removed int64, err error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	// List operations
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Pattern operations
	Keys(ctx context.Context, pattern string) ([]string, error)
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}
