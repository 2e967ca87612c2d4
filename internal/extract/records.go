// Package extract runs per-file symbol, import, call-site and heritage
// extraction on tree-sitter parse trees. Workers are stateless and
// side-effect free; they communicate with the driver through the value
// records below. Record order per file is stable (definition order).
package extract

import "github.com/codeatlas/codeatlas/internal/graph"

// Definition is one extracted symbol definition.
type Definition struct {
	Kind       graph.NodeKind
	Name       string
	FilePath   string
	StartLine  int // 1-based
	EndLine    int
	IsExported bool
	Text       string

	startByte uint
	endByte   uint
}

// NodeID returns the symbol's graph node id.
func (d *Definition) NodeID() string {
	return graph.SymbolNodeID(d.Kind, d.FilePath, d.Name, d.StartLine)
}

// ImportRecord is one raw import specifier found in a file.
type ImportRecord struct {
	FilePath  string
	Specifier string
	Line      int
}

// CallRecord is one call site attributed to its enclosing definition.
type CallRecord struct {
	FilePath   string
	CalledName string
	SourceID   string // node id of the enclosing definition
	Line       int
}

// HeritageRecord is one extends/implements/trait-impl relation.
type HeritageRecord struct {
	FilePath   string
	ClassName  string
	ParentName string
	Kind       string // extends | implements | trait-impl
}

const (
	HeritageExtends    = "extends"
	HeritageImplements = "implements"
	HeritageTraitImpl  = "trait-impl"
)

// FileResult carries everything extracted from a single file.
type FileResult struct {
	FilePath    string
	Language    string
	Definitions []Definition
	Imports     []ImportRecord
	Calls       []CallRecord
	Heritage    []HeritageRecord
	Failed      bool
	Err         error
}
