// Package symbols holds the in-memory symbol index built after
// extraction: an exact (file, name) index and a fuzzy name index.
package symbols

import "github.com/codeatlas/codeatlas/internal/graph"

// Entry is one fuzzy-index hit.
type Entry struct {
	NodeID   string
	FilePath string
	Kind     graph.NodeKind
}

// Stats summarises the table contents.
type Stats struct {
	FileCount         int
	GlobalSymbolCount int // distinct names
}

type exactKey struct {
	filePath string
	name     string
}

// Table indexes symbols two ways: exact (file, name) -> node id with
// last-writer-wins on collision, and fuzzy name -> entries, append-only
// with duplicates preserved. Insertion order of the fuzzy lists is driven
// by file order and is the tie-break order for fuzzy call resolution.
type Table struct {
	exact map[exactKey]string
	fuzzy map[string][]Entry
	files map[string]bool
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{
		exact: make(map[exactKey]string),
		fuzzy: make(map[string][]Entry),
		files: make(map[string]bool),
	}
}

// Add indexes one symbol. O(1).
func (t *Table) Add(filePath, name, nodeID string, kind graph.NodeKind) {
	t.exact[exactKey{filePath, name}] = nodeID
	t.fuzzy[name] = append(t.fuzzy[name], Entry{NodeID: nodeID, FilePath: filePath, Kind: kind})
	t.files[filePath] = true
}

// LookupExact returns the node id for (filePath, name), or "".
func (t *Table) LookupExact(filePath, name string) string {
	return t.exact[exactKey{filePath, name}]
}

// LookupFuzzy returns every entry sharing the name, possibly empty, in
// insertion order.
func (t *Table) LookupFuzzy(name string) []Entry {
	return t.fuzzy[name]
}

// Clear resets both indices.
func (t *Table) Clear() {
	t.exact = make(map[exactKey]string)
	t.fuzzy = make(map[string][]Entry)
	t.files = make(map[string]bool)
}

// GetStats reports file and distinct-name counts.
func (t *Table) GetStats() Stats {
	return Stats{FileCount: len(t.files), GlobalSymbolCount: len(t.fuzzy)}
}
