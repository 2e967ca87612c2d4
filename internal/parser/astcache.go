package parser

import (
	lru "github.com/hashicorp/golang-lru/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// DefaultASTCacheSize bounds the AST cache when no size is configured.
const DefaultASTCacheSize = 50

// ASTCache is a bounded LRU from file path to parsed tree. On overflow
// the least-recently-used entry is dropped and its tree released.
type ASTCache struct {
	cache *lru.Cache[string, *tree_sitter.Tree]
}

// NewASTCache creates a cache holding at most size trees.
func NewASTCache(size int) *ASTCache {
	if size <= 0 {
		size = DefaultASTCacheSize
	}
	cache, _ := lru.NewWithEvict(size, func(_ string, tree *tree_sitter.Tree) {
		if tree != nil {
			tree.Close()
		}
	})
	return &ASTCache{cache: cache}
}

// Get returns the cached tree for a path, marking it recently used.
// After eviction a path misses.
func (c *ASTCache) Get(path string) (*tree_sitter.Tree, bool) {
	return c.cache.Get(path)
}

// Put stores a tree, evicting the least-recently-used entry on overflow.
func (c *ASTCache) Put(path string, tree *tree_sitter.Tree) {
	c.cache.Add(path, tree)
}

// Remove drops a path's entry, releasing its tree.
func (c *ASTCache) Remove(path string) {
	c.cache.Remove(path)
}

// Len returns the number of cached trees.
func (c *ASTCache) Len() int { return c.cache.Len() }

// Purge releases every cached tree.
func (c *ASTCache) Purge() { c.cache.Purge() }
