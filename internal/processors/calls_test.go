package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/resolve"
	"github.com/codeatlas/codeatlas/internal/symbols"
)

func addFunction(g *graph.Graph, table *symbols.Table, filePath, name string, line int) string {
	id := graph.SymbolNodeID(graph.KindFunction, filePath, name, line)
	g.AddNode(&graph.Node{
		ID:    id,
		Label: graph.KindFunction,
		Props: &graph.SymbolProps{Name: name, Path: filePath, StartLine: line},
	})
	table.Add(filePath, name, id, graph.KindFunction)
	return id
}

func TestResolveCalls_SameFileBeatsImport(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()

	mainID := addFunction(g, table, "src/index.ts", "main", 1)
	localRender := addFunction(g, table, "src/index.ts", "render", 10)
	addFunction(g, table, "src/utils.ts", "render", 1)

	imports := resolve.NewImportMap()
	imports.Add("src/index.ts", "src/utils.ts")

	stats := ResolveCalls(g, table, imports, []extract.CallRecord{
		{FilePath: "src/index.ts", CalledName: "render", SourceID: mainID},
	}, nil)

	require.Equal(t, 1, stats.Resolved)
	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, localRender, rels[0].TargetID)
	assert.Equal(t, ReasonSameFile, rels[0].Reason)
	assert.InDelta(t, 0.85, rels[0].Confidence, 1e-9)
}

func TestResolveCalls_ImportResolved(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()

	mainID := addFunction(g, table, "src/index.ts", "main", 1)
	utilsRender := addFunction(g, table, "src/utils.ts", "render", 1)
	addFunction(g, table, "src/other.ts", "render", 1)

	imports := resolve.NewImportMap()
	imports.Add("src/index.ts", "src/db.ts")    // no render here
	imports.Add("src/index.ts", "src/utils.ts") // first import that matches wins
	imports.Add("src/index.ts", "src/other.ts")

	ResolveCalls(g, table, imports, []extract.CallRecord{
		{FilePath: "src/index.ts", CalledName: "render", SourceID: mainID},
	}, nil)

	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, utilsRender, rels[0].TargetID)
	assert.Equal(t, ReasonImportResolved, rels[0].Reason)
	assert.InDelta(t, 0.90, rels[0].Confidence, 1e-9)
}

func TestResolveCalls_FuzzyAmbiguity(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()

	callerID := addFunction(g, table, "src/unrelated.ts", "caller", 1)
	firstRender := addFunction(g, table, "src/a.ts", "render", 1)
	addFunction(g, table, "src/b.ts", "render", 1)

	ResolveCalls(g, table, resolve.NewImportMap(), []extract.CallRecord{
		{FilePath: "src/unrelated.ts", CalledName: "render", SourceID: callerID},
	}, nil)

	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, firstRender, rels[0].TargetID, "first fuzzy hit wins")
	assert.Equal(t, ReasonFuzzyGlobal, rels[0].Reason)
	assert.InDelta(t, 0.30, rels[0].Confidence, 1e-9)
}

func TestResolveCalls_FuzzyUnique(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()

	callerID := addFunction(g, table, "src/unrelated.ts", "caller", 1)
	addFunction(g, table, "src/a.ts", "render", 1)

	ResolveCalls(g, table, resolve.NewImportMap(), []extract.CallRecord{
		{FilePath: "src/unrelated.ts", CalledName: "render", SourceID: callerID},
	}, nil)

	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.50, rels[0].Confidence, 1e-9)
}

func TestResolveCalls_UnresolvedDropped(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()
	callerID := addFunction(g, table, "src/a.ts", "caller", 1)

	stats := ResolveCalls(g, table, resolve.NewImportMap(), []extract.CallRecord{
		{FilePath: "src/a.ts", CalledName: "nothing", SourceID: callerID},
	}, nil)

	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 0, g.RelationshipCount())
}

func TestResolveCalls_ReportsProgress(t *testing.T) {
	g := graph.New()
	table := symbols.NewTable()
	callerID := addFunction(g, table, "src/a.ts", "caller", 1)
	addFunction(g, table, "src/a.ts", "callee", 5)

	var calls [][2]int
	ResolveCalls(g, table, resolve.NewImportMap(), []extract.CallRecord{
		{FilePath: "src/a.ts", CalledName: "callee", SourceID: callerID},
	}, func(done, total int) { calls = append(calls, [2]int{done, total}) })

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{1, 1}, calls[len(calls)-1])
}
