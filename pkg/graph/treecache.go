package graph

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	ts "github.com/tree-sitter/go-tree-sitter"
)

// DefaultTreeCacheSize bounds how many parsed trees a graph retains.
const DefaultTreeCacheSize = 2048

// TreeCache retains parsed trees per file path. Evicted trees are closed;
// callers never hold a cached tree directly, only clones from Checkout, so
// eviction cannot invalidate a tree in use.
type TreeCache struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *ts.Tree]
	logger *slog.Logger

	evictions int
}

// NewTreeCache creates a cache holding at most size trees.
func NewTreeCache(size int, logger *slog.Logger) (*TreeCache, error) {
	if size <= 0 {
		size = DefaultTreeCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	tc := &TreeCache{logger: logger}

	cache, err := lru.NewWithEvict(size, func(path string, tree *ts.Tree) {
		tree.Close()
		tc.evictions++
		tc.logger.Debug("evicted retained tree", "file", path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tree cache: %w", err)
	}
	tc.cache = cache
	return tc, nil
}

// Put retains tree for path, taking ownership. A tree already cached for
// path is closed.
func (tc *TreeCache) Put(path string, tree *ts.Tree) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	// Add on an existing key replaces silently; Remove fires the eviction
	// callback so the old tree gets closed.
	tc.cache.Remove(path)
	tc.cache.Add(path, tree)
}

// Checkout returns an independent clone of the retained tree for path. The
// caller owns the clone and must close it.
func (tc *TreeCache) Checkout(path string) (*ts.Tree, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tree, ok := tc.cache.Get(path)
	if !ok {
		return nil, false
	}
	return tree.Clone(), true
}

// Contains reports whether a tree for path is retained.
func (tc *TreeCache) Contains(path string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.cache.Contains(path)
}

// Remove drops and closes the tree for path.
func (tc *TreeCache) Remove(path string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cache.Remove(path)
}

// Len returns the number of retained trees.
func (tc *TreeCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.cache.Len()
}

// Evictions returns how many trees were dropped for capacity or replacement.
func (tc *TreeCache) Evictions() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.evictions
}

// Close releases every retained tree.
func (tc *TreeCache) Close() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cache.Purge()
}
