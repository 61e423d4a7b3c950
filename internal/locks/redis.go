package locks

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rohankatakam/relay/internal/relayerr"
)

// RedisRegistry implements Registry on Redis. Every mutation runs as a
// single Lua script so no observer ever sees a partial lock set and the
// check-then-write of acquire cannot race across processes.
type RedisRegistry struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRegistry creates a registry on an existing Redis connection
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		logger: slog.Default().With("component", "locks"),
	}
}

// acquireScript checks every requested path, then writes every lock, in one
// atomic step. A record whose expiry has passed counts as absent.
//
// ARGV layout: now, caller user id, path count n, n paths, n encoded locks.
// Returns {1} on success or {0, blockingPath, ownerId} with no writes.
var acquireScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local caller = ARGV[2]
	local n = tonumber(ARGV[3])

	-- Phase 1: abort before any write if a live foreign lock blocks us
	for i = 1, n do
		local path = ARGV[3 + i]
		local raw = redis.call('HGET', key, path)
		if raw then
			local ok, lock = pcall(cjson.decode, raw)
			if ok then
				local expiry = tonumber(lock['expiry']) or 0
				if now < expiry and lock['user_id'] ~= caller then
					return {0, path, lock['user_id']}
				end
			end
		end
	end

	-- Phase 2: write all requested locks
	for i = 1, n do
		local path = ARGV[3 + i]
		local value = ARGV[3 + n + i]
		redis.call('HSET', key, path, value)
	end
	return {1}
`)

// releaseScript deletes only fields whose stored user_id matches the caller
var releaseScript = redis.NewScript(`
	local key = KEYS[1]
	local caller = ARGV[1]
	local removed = 0
	for i = 2, #ARGV do
		local raw = redis.call('HGET', key, ARGV[i])
		if raw then
			local ok, lock = pcall(cjson.decode, raw)
			if ok and lock['user_id'] == caller then
				redis.call('HDEL', key, ARGV[i])
				removed = removed + 1
			end
		end
	end
	return removed
`)

// releaseAllScript clears the namespace and reports the prior cardinality
var releaseAllScript = redis.NewScript(`
	local n = redis.call('HLEN', KEYS[1])
	redis.call('DEL', KEYS[1])
	return n
`)

// cleanupScript removes expired or unparsable fields
var cleanupScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local removed = 0
	local fields = redis.call('HKEYS', key)
	for _, field in ipairs(fields) do
		local raw = redis.call('HGET', key, field)
		if raw then
			local ok, lock = pcall(cjson.decode, raw)
			if not ok or now >= (tonumber(lock['expiry']) or 0) then
				redis.call('HDEL', key, field)
				removed = removed + 1
			end
		end
	end
	return removed
`)

func (r *RedisRegistry) Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error) {
	paths := dedupePaths(req.Paths)
	if len(paths) == 0 {
		return AcquireResult{Success: true}, nil
	}

	locks := make([]Lock, len(paths))
	args := make([]interface{}, 0, 3+2*len(paths))
	args = append(args, req.NowMs, req.UserID, len(paths))
	for _, path := range paths {
		args = append(args, path)
	}
	for i, path := range paths {
		lock := Lock{
			FilePath:  path,
			UserID:    req.UserID,
			UserName:  req.UserName,
			Status:    req.Status,
			AgentHead: req.AgentHead,
			Message:   req.Message,
			Timestamp: req.NowMs,
			Expiry:    req.NowMs + TTLMs,
		}
		encoded, err := lock.Encode()
		if err != nil {
			return AcquireResult{}, relayerr.LockStoreUnavailable(err, "encode lock record")
		}
		locks[i] = lock
		args = append(args, encoded)
	}

	key := NamespaceKey(req.RepoURL, req.Branch)
	result, err := acquireScript.Run(ctx, r.client, []string{key}, args...).Result()
	if err != nil {
		return AcquireResult{}, relayerr.LockStoreUnavailable(err, "acquire script failed")
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) == 0 {
		return AcquireResult{}, relayerr.LockStoreUnavailable(nil, "acquire script returned an unexpected shape")
	}

	if code, _ := reply[0].(int64); code == 1 {
		return AcquireResult{Success: true, Locks: locks}, nil
	}

	res := AcquireResult{Success: false, Reason: ReasonFileConflict}
	if len(reply) >= 3 {
		res.ConflictingFile, _ = reply[1].(string)
		res.ConflictingUser, _ = reply[2].(string)
	}
	r.logger.Debug("acquire blocked",
		"repo", req.RepoURL, "branch", req.Branch,
		"file", res.ConflictingFile, "owner", res.ConflictingUser)
	return res, nil
}

func (r *RedisRegistry) Release(ctx context.Context, repoURL, branch string, paths []string, userID string) error {
	paths = dedupePaths(paths)
	if len(paths) == 0 {
		return nil
	}

	args := make([]interface{}, 0, 1+len(paths))
	args = append(args, userID)
	for _, path := range paths {
		args = append(args, path)
	}

	key := NamespaceKey(repoURL, branch)
	if err := releaseScript.Run(ctx, r.client, []string{key}, args...).Err(); err != nil {
		return relayerr.LockStoreUnavailable(err, "release script failed")
	}
	return nil
}

func (r *RedisRegistry) ReleaseAll(ctx context.Context, repoURL, branch string) (int64, error) {
	key := NamespaceKey(repoURL, branch)
	released, err := releaseAllScript.Run(ctx, r.client, []string{key}).Int64()
	if err != nil {
		return 0, relayerr.LockStoreUnavailable(err, "release-all script failed")
	}
	return released, nil
}

func (r *RedisRegistry) List(ctx context.Context, repoURL, branch string, nowMs int64) (map[string]Lock, error) {
	key := NamespaceKey(repoURL, branch)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, relayerr.LockStoreUnavailable(err, "list locks failed")
	}

	// Read-only: expired fields are filtered here but reclaimed only by the
	// cleanup script, which re-checks expiry atomically. Deleting from a
	// snapshot would race a concurrent re-acquire of the same path.
	active := make(map[string]Lock, len(fields))
	for path, raw := range fields {
		lock, err := DecodeLock(raw)
		if err != nil || !lock.Active(nowMs) {
			continue
		}
		active[path] = lock
	}
	return active, nil
}

func (r *RedisRegistry) CleanupExpired(ctx context.Context, repoURL, branch string, nowMs int64) (int64, error) {
	key := NamespaceKey(repoURL, branch)
	removed, err := cleanupScript.Run(ctx, r.client, []string{key}, nowMs).Int64()
	if err != nil {
		return 0, relayerr.LockStoreUnavailable(err, "cleanup script failed")
	}
	return removed, nil
}

func (r *RedisRegistry) Namespaces(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := r.client.Scan(ctx, cursor, "locks:*", 100).Result()
		if err != nil {
			return nil, relayerr.LockStoreUnavailable(err, "scan lock namespaces failed")
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
