package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/storage"
)

func fixtureStore(t *testing.T) *storage.GraphStore {
	t.Helper()
	g := graph.New()

	addFn := func(filePath, name string, line int) string {
		id := graph.SymbolNodeID(graph.KindFunction, filePath, name, line)
		g.AddNode(&graph.Node{
			ID:    id,
			Label: graph.KindFunction,
			Props: &graph.SymbolProps{Name: name, Path: filePath, StartLine: line},
		})
		return id
	}
	g.AddNode(graph.NewFileNode("src/handler.ts", ""))
	g.AddNode(graph.NewFileNode("src/index.ts", ""))

	handle := addFn("src/handler.ts", "handleRequest", 3)
	validate := addFn("src/handler.ts", "validateInput", 20)
	persist := addFn("src/handler.ts", "persistRecord", 30)

	g.AddRelationship(&graph.Relationship{Type: graph.RelCalls, SourceID: handle, TargetID: validate, Confidence: 0.85, Reason: "same-file"})
	g.AddRelationship(&graph.Relationship{Type: graph.RelCalls, SourceID: validate, TargetID: persist, Confidence: 0.85, Reason: "same-file"})
	g.AddRelationship(&graph.Relationship{
		Type:     graph.RelImports,
		SourceID: graph.FileNodeID("src/index.ts"),
		TargetID: graph.FileNodeID("src/handler.ts"),
	})

	process := &graph.Node{
		ID:    "Process:0",
		Label: graph.KindProcess,
		Props: &graph.ProcessProps{
			HeuristicLabel: "HandleRequest → PersistRecord",
			ProcessType:    graph.ProcessTypeIntraCommunity,
			StepCount:      3,
			EntryPointID:   handle,
			TerminalID:     persist,
			Trace:          []string{handle, validate, persist},
		},
	}
	g.AddNode(process)
	for i, id := range []string{handle, validate, persist} {
		g.AddRelationship(&graph.Relationship{
			Type: graph.RelStepInProcess, SourceID: id, TargetID: "Process:0",
			Confidence: 1.0, Step: i + 1,
		})
	}
	g.Finalize()

	dbPath := filepath.Join(t.TempDir(), "atlas.db")
	require.NoError(t, storage.CreateGraphStore(dbPath, g))
	store, err := storage.OpenGraphStore(dbPath, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFindSymbol_Exact(t *testing.T) {
	toolkit := New(fixtureStore(t))
	matches, err := toolkit.FindSymbol(context.Background(), "handleRequest")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, "handleRequest", matches[0].Node.Name)
}

func TestFindSymbol_Fuzzy(t *testing.T) {
	toolkit := New(fixtureStore(t))
	matches, err := toolkit.FindSymbol(context.Background(), "handleRequst") // typo
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "handleRequest", matches[0].Node.Name)
	assert.Less(t, matches[0].Similarity, 1.0)
}

func TestFindSymbol_NoMatch(t *testing.T) {
	toolkit := New(fixtureStore(t))
	matches, err := toolkit.FindSymbol(context.Background(), "zzzzqqqq")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCallersAndCallees(t *testing.T) {
	store := fixtureStore(t)
	toolkit := New(store)
	ctx := context.Background()

	validate := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "validateInput", 20)
	handle := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "handleRequest", 3)
	persist := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "persistRecord", 30)

	callers, err := toolkit.Callers(ctx, validate, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{handle}, callers)

	callees, err := toolkit.Callees(ctx, handle, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{validate, persist}, callees)
}

func TestImpactOf(t *testing.T) {
	toolkit := New(fixtureStore(t))
	persist := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "persistRecord", 30)

	impact, err := toolkit.ImpactOf(context.Background(), persist)
	require.NoError(t, err)

	handle := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "handleRequest", 3)
	validate := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "validateInput", 20)
	assert.ElementsMatch(t, []string{handle, validate}, impact.Callers)
	assert.Equal(t, []string{graph.FileNodeID("src/index.ts")}, impact.Importers)
	assert.Equal(t, []string{"Process:0"}, impact.Processes)
}

func TestRenamePlan(t *testing.T) {
	toolkit := New(fixtureStore(t))
	validate := graph.SymbolNodeID(graph.KindFunction, "src/handler.ts", "validateInput", 20)

	touches, err := toolkit.RenamePlan(context.Background(), validate)
	require.NoError(t, err)
	require.Len(t, touches, 2, "definition site plus one caller")
	assert.Equal(t, validate, touches[0].NodeID)
	assert.Equal(t, 20, touches[0].Line)
}
