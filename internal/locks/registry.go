package locks

import "context"

// ReasonFileConflict is the non-error outcome of an acquire that hit an
// active lock held by someone else.
const ReasonFileConflict = "FILE_CONFLICT"

// AcquireRequest asks for every path or none
type AcquireRequest struct {
	RepoURL   string
	Branch    string
	Paths     []string
	UserID    string
	UserName  string
	Status    Status
	AgentHead string
	Message   string
	NowMs     int64
}

// AcquireResult reports either the written locks or the first blocking file
type AcquireResult struct {
	Success bool
	Locks   []Lock

	// Set only when Success is false
	Reason          string
	ConflictingFile string
	ConflictingUser string
}

// Registry is the atomic multi-file lock store. Conflicts are results, not
// errors; errors mean the store itself failed (LockStoreUnavailable).
type Registry interface {
	// Acquire writes every requested lock or none. Locks already held by
	// the caller are overwritten, refreshing timestamp and expiry.
	Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error)

	// Release deletes only fields owned by userID; non-matching fields are
	// silently ignored. Idempotent.
	Release(ctx context.Context, repoURL, branch string, paths []string, userID string) error

	// ReleaseAll clears the namespace, returning the prior lock count
	ReleaseAll(ctx context.Context, repoURL, branch string) (int64, error)

	// List returns all active locks keyed by path, skipping expired fields
	List(ctx context.Context, repoURL, branch string, nowMs int64) (map[string]Lock, error)

	// CleanupExpired removes expired fields; safe to run concurrently with
	// any other operation.
	CleanupExpired(ctx context.Context, repoURL, branch string, nowMs int64) (int64, error)

	// Namespaces lists every lock namespace key currently stored
	Namespaces(ctx context.Context) ([]string, error)
}
