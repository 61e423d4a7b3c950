package graph

import (
	"fmt"
	"sort"

	"github.com/rohankatakam/relay/internal/locks"
)

// EdgeLabelImport is the only edge label the graph carries
const EdgeLabelImport = "import"

// Node is one source file in the dependency graph
type Node struct {
	ID       string `json:"id"` // repo-relative path
	Language string `json:"language,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// Edge is a directed import relation: Source imports Target
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Metadata describes how the graph was produced
type Metadata struct {
	GeneratedAtMs  int64 `json:"generated_at_ms"`
	FilesProcessed int   `json:"files_processed"`
	EdgesFound     int   `json:"edges_found"`
}

// Graph is the persisted dependency graph for one namespace. Version is the
// repo head commit the graph was computed at.
type Graph struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
}

// Snapshot is a graph overlaid with a fresh lock snapshot, the shape every
// read path returns.
type Snapshot struct {
	Graph
	Locks map[string]locks.Lock `json:"locks"`
}

// Sort orders nodes by id and edges by (source, target) so identical inputs
// produce byte-identical graphs.
func (g *Graph) Sort() {
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
}

// Neighbors returns every file adjacent to path treating the edge set as
// undirected, which keeps neighbor detection cycle-safe.
func (g *Graph) Neighbors(path string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range g.Edges {
		switch path {
		case e.Source:
			if !seen[e.Target] {
				seen[e.Target] = true
				out = append(out, e.Target)
			}
		case e.Target:
			if !seen[e.Source] {
				seen[e.Source] = true
				out = append(out, e.Source)
			}
		}
	}
	return out
}

// Dependents returns every file with an out-edge into path (files that
// import path). Used for orphaned-dependency reporting on release.
func (g *Graph) Dependents(path string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range g.Edges {
		if e.Target == path && !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out
}

func edgeKey(source, target string) string {
	return fmt.Sprintf("%s=>%s", source, target)
}
