// Package parser owns tree-sitter parser instances, lazily loaded
// grammars and the bounded AST cache.
package parser

import (
	"fmt"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/lang"
)

// ErrGrammarUnavailable marks languages in the classifier set that have
// no grammar at runtime (swift, kotlin). Their files are dropped.
var ErrGrammarUnavailable = fmt.Errorf("no grammar available")

// grammarKey distinguishes the tsx flavour of the TypeScript grammar.
func grammarKey(langTag string, tsx bool) string {
	if langTag == lang.TypeScript && tsx {
		return "typescript/tsx"
	}
	return langTag
}

// Host owns the long-lived parser and the per-language grammar/query
// cache. Grammars are read-only after load and may be shared; the Host
// itself is driven by the single orchestrator. Extraction workers create
// isolated parsers with NewWorkerParser instead.
type Host struct {
	mu       sync.Mutex
	parser   *tree_sitter.Parser
	grammars map[string]*tree_sitter.Language
	queries  map[string]*tree_sitter.Query
	cache    *ASTCache
}

// NewHost creates a parser host with an AST cache of the given size.
func NewHost(cacheSize int) *Host {
	return &Host{
		parser:   tree_sitter.NewParser(),
		grammars: make(map[string]*tree_sitter.Language),
		queries:  make(map[string]*tree_sitter.Query),
		cache:    NewASTCache(cacheSize),
	}
}

// Grammar returns the lazily loaded grammar for a language tag. The tsx
// flavour is selected when the file name ends in .tsx.
func (h *Host) Grammar(langTag, filePath string) (*tree_sitter.Language, error) {
	tsx := strings.HasSuffix(strings.ToLower(filePath), ".tsx")
	key := grammarKey(langTag, tsx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.grammars[key]; ok {
		return g, nil
	}
	g := grammarFor(langTag, tsx)
	if g == nil {
		return nil, fmt.Errorf("%w for %s", ErrGrammarUnavailable, langTag)
	}
	h.grammars[key] = g
	return g, nil
}

// Query returns the compiled definition query for a language tag,
// compiling and caching it on first use.
func (h *Host) Query(langTag, filePath string) (*tree_sitter.Query, error) {
	g, err := h.Grammar(langTag, filePath)
	if err != nil {
		return nil, err
	}
	tsx := strings.HasSuffix(strings.ToLower(filePath), ".tsx")
	key := grammarKey(langTag, tsx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if q, ok := h.queries[key]; ok {
		return q, nil
	}
	queryStr, ok := definitionQueries[langTag]
	if !ok {
		return nil, fmt.Errorf("%w: no query for %s", ErrGrammarUnavailable, langTag)
	}
	q, _ := tree_sitter.NewQuery(g, queryStr)
	// The tree-sitter Go binding can return a typed-nil error; checking
	// the query pointer is the reliable signal.
	if q == nil {
		return nil, fmt.Errorf("failed to compile query for %s", langTag)
	}
	h.queries[key] = q
	return q, nil
}

// Parse parses file bytes with the host's shared parser, consulting the
// AST cache first. The returned tree is owned by the cache.
func (h *Host) Parse(filePath, langTag string, content []byte) (*tree_sitter.Tree, error) {
	if tree, ok := h.cache.Get(filePath); ok {
		return tree, nil
	}
	g, err := h.Grammar(langTag, filePath)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.parser.SetLanguage(g); err != nil {
		return nil, fmt.Errorf("failed to set %s grammar: %w", langTag, err)
	}
	tree := h.parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse produced no tree for %s", filePath)
	}
	h.cache.Put(filePath, tree)
	return tree, nil
}

// Invalidate drops a file's cached tree, releasing it.
func (h *Host) Invalidate(filePath string) { h.cache.Remove(filePath) }

// Close releases the cache and the shared parser.
func (h *Host) Close() {
	h.cache.Purge()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parser.Close()
	for _, q := range h.queries {
		q.Close()
	}
}

// NewWorkerParser creates an isolated parser for an extraction worker.
// Workers never touch the host's parser or cache.
func NewWorkerParser(g *tree_sitter.Language) (*tree_sitter.Parser, error) {
	p := tree_sitter.NewParser()
	if err := p.SetLanguage(g); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
