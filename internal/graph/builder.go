package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rohankatakam/relay/internal/clock"
	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/imports"
	"github.com/rohankatakam/relay/internal/locks"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// blobWorkers bounds concurrent blob fetches during a build
const blobWorkers = 8

// buildTimeout bounds one build end to end. Builds detach from the caller's
// context (a disconnect must not abandon a half-finished build) so they
// carry their own deadline.
const buildTimeout = 30 * time.Second

// Builder maintains the per-namespace dependency graph incrementally.
// Builds are single-flight per namespace in-process; cross-process races
// are last-writer-wins and self-heal on the next build because both writers
// derive from the same head.
type Builder struct {
	host     githost.Host
	store    *Store
	registry locks.Registry
	clk      clock.Clock
	group    singleflight.Group
	logger   *slog.Logger
}

// NewBuilder creates a graph builder
func NewBuilder(host githost.Host, store *Store, registry locks.Registry, clk clock.Clock) *Builder {
	return &Builder{
		host:     host,
		store:    store,
		registry: registry,
		clk:      clk,
		logger:   slog.Default().With("component", "graph"),
	}
}

// Cached returns the stored graph overlaid with a fresh lock snapshot.
// Never calls the repository host; absent or unparsable state is a miss.
func (b *Builder) Cached(ctx context.Context, repoURL, branch string) (*Snapshot, bool, error) {
	g, found, err := b.store.LoadGraph(ctx, repoURL, branch)
	if err != nil || !found {
		return nil, false, err
	}
	snap, err := b.overlay(ctx, repoURL, branch, g)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// NeedsUpdate compares the current remote head against the stored build meta
func (b *Builder) NeedsUpdate(ctx context.Context, repoURL, branch string) (currentHead, storedHead string, err error) {
	owner, repo, err := githost.ParseRepoCoordinates(repoURL)
	if err != nil {
		return "", "", err
	}
	currentHead, err = b.host.BranchHead(ctx, owner, repo, branch)
	if err != nil {
		return "", "", err
	}
	storedHead, err = b.store.LoadMeta(ctx, repoURL, branch)
	if err != nil {
		return "", "", err
	}
	return currentHead, storedHead, nil
}

// Generate builds (or refreshes) the graph for the namespace. Concurrent
// callers share one build. The build runs to completion and caches its
// result even if the triggering caller goes away.
func (b *Builder) Generate(ctx context.Context, repoURL, branch string, force bool) (*Snapshot, error) {
	key := repoURL + "|" + branch
	result, err, _ := b.group.Do(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		return b.build(buildCtx, repoURL, branch, force)
	})
	if err != nil {
		return nil, err
	}

	g := result.(*Graph)
	return b.overlay(ctx, repoURL, branch, g)
}

func (b *Builder) build(ctx context.Context, repoURL, branch string, force bool) (*Graph, error) {
	owner, repo, err := githost.ParseRepoCoordinates(repoURL)
	if err != nil {
		return nil, err
	}

	head, err := b.host.BranchHead(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}

	// Short-circuit: branch did not move and a usable graph exists
	if !force {
		storedHead, err := b.store.LoadMeta(ctx, repoURL, branch)
		if err != nil {
			return nil, err
		}
		if storedHead == head {
			if cached, found, err := b.store.LoadGraph(ctx, repoURL, branch); err != nil {
				return nil, err
			} else if found {
				return cached, nil
			}
		}
	}

	tree, err := b.host.RecursiveTree(ctx, owner, repo, head)
	if err != nil {
		return nil, err
	}

	// Retain only source files the extractor understands
	entries := make(map[string]githost.TreeEntry)
	pathSet := make(map[string]bool)
	newSHAs := make(map[string]string)
	for _, entry := range tree {
		if entry.Type != "blob" || !imports.IsSupported(entry.Path) {
			continue
		}
		entries[entry.Path] = entry
		pathSet[entry.Path] = true
		newSHAs[entry.Path] = entry.SHA
	}

	storedSHAs, err := b.store.FileSHAs(ctx, repoURL, branch)
	if err != nil {
		return nil, err
	}

	var added, changed, deleted []string
	for path, sha := range newSHAs {
		prev, known := storedSHAs[path]
		switch {
		case !known:
			added = append(added, path)
		case prev != sha:
			changed = append(changed, path)
		}
	}
	for path := range storedSHAs {
		if !pathSet[path] {
			deleted = append(deleted, path)
		}
	}

	existing, hasExisting, err := b.store.LoadGraph(ctx, repoURL, branch)
	if err != nil {
		return nil, err
	}

	// A lingering SHA map next to an empty graph means the cache is
	// corrupt; rebuild from scratch.
	fullRebuild := !hasExisting ||
		(len(pathSet) > 0 && len(existing.Nodes) == 0 &&
			len(added) == 0 && len(changed) == 0 && len(deleted) == 0)

	nodes := make(map[string]Node)
	edges := make(map[string]Edge)
	var filesToProcess []string

	if fullRebuild {
		for path := range pathSet {
			filesToProcess = append(filesToProcess, path)
		}
	} else {
		deletedSet := make(map[string]bool, len(deleted))
		for _, path := range deleted {
			deletedSet[path] = true
		}
		changedSet := make(map[string]bool, len(changed))
		for _, path := range changed {
			changedSet[path] = true
		}

		for _, node := range existing.Nodes {
			if deletedSet[node.ID] {
				continue
			}
			if entry, ok := entries[node.ID]; ok {
				node.Size = entry.Size
				node.Language = string(imports.DetectLanguage(node.ID))
			}
			nodes[node.ID] = node
		}
		for _, edge := range existing.Edges {
			if deletedSet[edge.Source] || deletedSet[edge.Target] {
				continue
			}
			// Changed files get their out-edges recomputed
			if changedSet[edge.Source] {
				continue
			}
			edges[edgeKey(edge.Source, edge.Target)] = edge
		}

		filesToProcess = append(filesToProcess, added...)
		filesToProcess = append(filesToProcess, changed...)
	}

	b.logger.Info("building graph",
		"repo", repoURL, "branch", branch, "head", head,
		"full", fullRebuild, "files", len(filesToProcess),
		"added", len(added), "changed", len(changed), "deleted", len(deleted))

	contents := b.fetchContents(ctx, owner, repo, head, filesToProcess)

	for _, path := range filesToProcess {
		entry := entries[path]
		nodes[path] = Node{
			ID:       path,
			Language: string(imports.DetectLanguage(path)),
			Size:     entry.Size,
		}

		content, ok := contents[path]
		if !ok {
			continue // fetch failed, already logged
		}

		for _, ref := range imports.Extract(content, path) {
			target, resolved := imports.Resolve(ref, path, pathSet)
			if !resolved {
				continue
			}
			if _, known := nodes[target]; !known {
				targetEntry := entries[target]
				nodes[target] = Node{
					ID:       target,
					Language: string(imports.DetectLanguage(target)),
					Size:     targetEntry.Size,
				}
			}
			edges[edgeKey(path, target)] = Edge{Source: path, Target: target, Label: EdgeLabelImport}
		}
	}

	g := &Graph{
		Nodes:   make([]Node, 0, len(nodes)),
		Edges:   make([]Edge, 0, len(edges)),
		Version: head,
		Metadata: Metadata{
			GeneratedAtMs:  b.clk.NowMs(),
			FilesProcessed: len(filesToProcess),
			EdgesFound:     len(edges),
		},
	}
	for _, node := range nodes {
		g.Nodes = append(g.Nodes, node)
	}
	for _, edge := range edges {
		g.Edges = append(g.Edges, edge)
	}
	g.Sort()

	if err := b.store.SaveGraph(ctx, repoURL, branch, g); err != nil {
		return nil, fmt.Errorf("persist graph: %w", err)
	}
	if err := b.store.SaveMeta(ctx, repoURL, branch, head); err != nil {
		return nil, fmt.Errorf("persist graph meta: %w", err)
	}
	if err := b.store.SyncFileSHAs(ctx, repoURL, branch, deleted, newSHAs); err != nil {
		return nil, fmt.Errorf("persist file shas: %w", err)
	}

	return g, nil
}

// fetchContents downloads blobs with bounded concurrency. Per-file failures
// are logged and skipped; a single unreadable file must not abort the build.
func (b *Builder) fetchContents(ctx context.Context, owner, repo, head string, paths []string) map[string][]byte {
	contents := make(map[string][]byte, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobWorkers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			content, err := b.host.BlobContent(gctx, owner, repo, path, head)
			if err != nil {
				b.logger.Warn("blob fetch failed", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			contents[path] = content
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return contents
}

// overlay attaches a fresh lock snapshot to the graph
func (b *Builder) overlay(ctx context.Context, repoURL, branch string, g *Graph) (*Snapshot, error) {
	lockSet, err := b.registry.List(ctx, repoURL, branch, b.clk.NowMs())
	if err != nil {
		return nil, err
	}
	return &Snapshot{Graph: *g, Locks: lockSet}, nil
}
