package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/relay/internal/kv"
)

// Key layout per namespace:
//
//	graph:<repo>:<branch>           serialized graph
//	graph:meta:<repo>:<branch>      commit sha of the last build
//	graph:file_shas:<repo>:<branch> hash of path -> blob sha
func graphKey(repoURL, branch string) string {
	return fmt.Sprintf("graph:%s:%s", repoURL, branch)
}

func metaKey(repoURL, branch string) string {
	return fmt.Sprintf("graph:meta:%s:%s", repoURL, branch)
}

func fileSHAsKey(repoURL, branch string) string {
	return fmt.Sprintf("graph:file_shas:%s:%s", repoURL, branch)
}

// Store persists graph state in the KV store
type Store struct {
	kv kv.Store
}

// NewStore creates a graph store on the given KV backend
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// LoadGraph returns the stored graph, or found=false when absent or
// unparsable. An unparsable blob is treated as a miss, not an error; the
// next build repairs it.
func (s *Store) LoadGraph(ctx context.Context, repoURL, branch string) (*Graph, bool, error) {
	raw, found, err := s.kv.Get(ctx, graphKey(repoURL, branch))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var g Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, false, nil
	}
	return &g, true, nil
}

// SaveGraph writes the serialized graph blob
func (s *Store) SaveGraph(ctx context.Context, repoURL, branch string, g *Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return s.kv.Set(ctx, graphKey(repoURL, branch), string(data))
}

// LoadMeta returns the commit sha of the last build, empty if never built
func (s *Store) LoadMeta(ctx context.Context, repoURL, branch string) (string, error) {
	sha, _, err := s.kv.Get(ctx, metaKey(repoURL, branch))
	return sha, err
}

// SaveMeta records the commit sha the graph was built at
func (s *Store) SaveMeta(ctx context.Context, repoURL, branch, commitSHA string) error {
	return s.kv.Set(ctx, metaKey(repoURL, branch), commitSHA)
}

// FileSHAs returns the stored path -> blob sha map
func (s *Store) FileSHAs(ctx context.Context, repoURL, branch string) (map[string]string, error) {
	return s.kv.HGetAll(ctx, fileSHAsKey(repoURL, branch))
}

// SyncFileSHAs deletes the removed paths and writes the full new map
func (s *Store) SyncFileSHAs(ctx context.Context, repoURL, branch string, deleted []string, shas map[string]string) error {
	key := fileSHAsKey(repoURL, branch)
	if len(deleted) > 0 {
		if _, err := s.kv.HDel(ctx, key, deleted...); err != nil {
			return err
		}
	}
	return s.kv.HSet(ctx, key, shas)
}

// Clear removes all graph state for the namespace
func (s *Store) Clear(ctx context.Context, repoURL, branch string) error {
	_, err := s.kv.Del(ctx,
		graphKey(repoURL, branch),
		metaKey(repoURL, branch),
		fileSHAsKey(repoURL, branch))
	return err
}
