package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/graph"
)

func TestBleveIndexer_IndexAndSearch(t *testing.T) {
	indexer, err := NewBleveIndexer(filepath.Join(t.TempDir(), "symbols.bleve"))
	require.NoError(t, err)
	defer indexer.Close()

	g := graph.New()
	ids := map[string]string{}
	for _, sym := range []struct{ name, file string }{
		{"handleRequest", "src/handler.ts"},
		{"validateInput", "src/validator.ts"},
		{"formatResponse", "src/formatter.ts"},
	} {
		id := graph.SymbolNodeID(graph.KindFunction, sym.file, sym.name, 1)
		ids[sym.name] = id
		g.AddNode(&graph.Node{
			ID:    id,
			Label: graph.KindFunction,
			Props: &graph.SymbolProps{Name: sym.name, Path: sym.file, StartLine: 1},
		})
	}
	// Non-symbol nodes are skipped by the graph feed.
	g.AddNode(graph.NewFileNode("src/handler.ts", ""))

	require.NoError(t, IndexGraph(context.Background(), indexer, g))

	hits, err := indexer.Search("handleRequest", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, ids["handleRequest"], hits[0])
}
