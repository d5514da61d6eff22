// Package graph builds the project-wide index of tracked import bindings and
// component usage sites.
//
// Files live in an arena keyed by FileID. Records refer to syntax by byte
// span (NodeRef), never by node pointer, so a record can be resolved against
// any tree parsed from the same text. The graph retains one parsed tree per
// file in a bounded TreeCache; consumers get private clones.
package graph

import (
	"path/filepath"
	"sort"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ProjectGraph owns every binding and usage found under Root. It is built
// once per run and read concurrently afterwards; only the watcher mutates it,
// through Upsert and Remove.
type ProjectGraph struct {
	Root    string
	Tracker *Tracker

	mu       sync.RWMutex
	files    map[FileID]*File
	byPath   map[string]FileID
	nextID   FileID
	trees    *TreeCache
	warnings []Warning
	stats    BuildStats
}

func newProjectGraph(root string, tracker *Tracker, trees *TreeCache) *ProjectGraph {
	return &ProjectGraph{
		Root:    root,
		Tracker: tracker,
		files:   make(map[FileID]*File),
		byPath:  make(map[string]FileID),
		trees:   trees,
	}
}

// reserveID returns the ID for path, allocating one if needed.
func (g *ProjectGraph) reserveID(path string) FileID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byPath[path]; ok {
		return id
	}
	id := g.nextID
	g.nextID++
	g.byPath[path] = id
	return id
}

// Upsert stores file and retains tree for it. A nil tree leaves any
// previously retained tree in place.
func (g *ProjectGraph) Upsert(file *File, tree *ts.Tree) {
	g.mu.Lock()
	g.byPath[file.Path] = file.ID
	if file.ID >= g.nextID {
		g.nextID = file.ID + 1
	}
	g.files[file.ID] = file
	g.mu.Unlock()

	if tree != nil {
		g.trees.Put(file.Path, tree)
	}
}

// Remove drops path and its retained tree.
func (g *ProjectGraph) Remove(path string) {
	path = g.abs(path)
	g.mu.Lock()
	if id, ok := g.byPath[path]; ok {
		delete(g.files, id)
	}
	g.mu.Unlock()
	g.trees.Remove(path)
}

// File returns the file at path, which may be absolute or relative to Root.
func (g *ProjectGraph) File(path string) (*File, bool) {
	path = g.abs(path)
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byPath[path]
	if !ok {
		return nil, false
	}
	f, ok := g.files[id]
	return f, ok
}

// FileByID returns the file with id.
func (g *ProjectGraph) FileByID(id FileID) (*File, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.files[id]
	return f, ok
}

// Files returns all files sorted by relative path.
func (g *ProjectGraph) Files() []*File {
	g.mu.RLock()
	out := make([]*File, 0, len(g.files))
	for _, f := range g.files {
		out = append(out, f)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

// Usages returns every usage, ordered by file and position.
func (g *ProjectGraph) Usages() []ComponentUsage {
	var out []ComponentUsage
	for _, f := range g.Files() {
		out = append(out, f.Usages...)
	}
	return out
}

// Bindings returns every binding, ordered by file and position.
func (g *ProjectGraph) Bindings() []ImportBinding {
	var out []ImportBinding
	for _, f := range g.Files() {
		out = append(out, f.Bindings...)
	}
	return out
}

// Tree returns a private clone of the retained tree for path. The caller
// must close it. Returns false when the tree was never retained or has been
// evicted; callers then re-parse File.Source.
func (g *ProjectGraph) Tree(path string) (*ts.Tree, bool) {
	return g.trees.Checkout(g.abs(path))
}

// HasTree reports whether a tree for path is currently retained.
func (g *ProjectGraph) HasTree(path string) bool {
	return g.trees.Contains(g.abs(path))
}

// Warnings returns the non-fatal problems recorded during the build.
func (g *ProjectGraph) Warnings() []Warning {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Warning(nil), g.warnings...)
}

func (g *ProjectGraph) addWarning(w Warning) {
	g.mu.Lock()
	g.warnings = append(g.warnings, w)
	g.mu.Unlock()
}

// Stats returns the build statistics.
func (g *ProjectGraph) Stats() BuildStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats
}

// Close releases retained trees.
func (g *ProjectGraph) Close() {
	g.trees.Close()
}

func (g *ProjectGraph) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(g.Root, filepath.FromSlash(path))
}

// Rel returns path relative to Root in slash form.
func (g *ProjectGraph) Rel(path string) string {
	rel, err := filepath.Rel(g.Root, g.abs(path))
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
