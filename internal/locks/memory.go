package locks

import (
	"context"
	"sync"
)

// MemoryRegistry implements Registry with a single mutex standing in for
// the store's atomic script. Used by tests and local development.
type MemoryRegistry struct {
	mu         sync.Mutex
	namespaces map[string]map[string]Lock // namespace key -> path -> lock
}

// NewMemoryRegistry creates an empty in-process registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{namespaces: make(map[string]map[string]Lock)}
}

func (m *MemoryRegistry) Acquire(_ context.Context, req AcquireRequest) (AcquireResult, error) {
	paths := dedupePaths(req.Paths)
	if len(paths) == 0 {
		return AcquireResult{Success: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := NamespaceKey(req.RepoURL, req.Branch)
	ns := m.namespaces[key]

	// Check phase: any live foreign lock aborts with no writes
	for _, path := range paths {
		existing, held := ns[path]
		if held && existing.Active(req.NowMs) && existing.UserID != req.UserID {
			return AcquireResult{
				Success:         false,
				Reason:          ReasonFileConflict,
				ConflictingFile: path,
				ConflictingUser: existing.UserID,
			}, nil
		}
	}

	if ns == nil {
		ns = make(map[string]Lock)
		m.namespaces[key] = ns
	}

	locks := make([]Lock, len(paths))
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
		ns[path] = lock
		locks[i] = lock
	}

	return AcquireResult{Success: true, Locks: locks}, nil
}

func (m *MemoryRegistry) Release(_ context.Context, repoURL, branch string, paths []string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespaces[NamespaceKey(repoURL, branch)]
	for _, path := range dedupePaths(paths) {
		if existing, held := ns[path]; held && existing.UserID == userID {
			delete(ns, path)
		}
	}
	return nil
}

func (m *MemoryRegistry) ReleaseAll(_ context.Context, repoURL, branch string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := NamespaceKey(repoURL, branch)
	released := int64(len(m.namespaces[key]))
	delete(m.namespaces, key)
	return released, nil
}

func (m *MemoryRegistry) List(_ context.Context, repoURL, branch string, nowMs int64) (map[string]Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[string]Lock)
	for path, lock := range m.namespaces[NamespaceKey(repoURL, branch)] {
		if lock.Active(nowMs) {
			active[path] = lock
		}
	}
	return active, nil
}

func (m *MemoryRegistry) CleanupExpired(_ context.Context, repoURL, branch string, nowMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespaces[NamespaceKey(repoURL, branch)]
	var removed int64
	for path, lock := range ns {
		if !lock.Active(nowMs) {
			delete(ns, path)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryRegistry) Namespaces(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.namespaces))
	for key, ns := range m.namespaces {
		if len(ns) > 0 {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
