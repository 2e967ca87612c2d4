package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/graph"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = "test"
	cfg.Index.RespectGitignore = false
	cfg.Pipeline.Workers = 2
	return cfg
}

// writeMiniRepo lays out the five-file fixture: a request handler calling
// into a validator, a store and a formatter.
func writeMiniRepo(t *testing.T, root string) {
	writeFile(t, root, "src/validator.ts", `export function validateInput(input: string): string {
  return sanitize(input);
}

function sanitize(input: string): string {
  return input;
}
`)
	writeFile(t, root, "src/db.ts", `export function saveToDb(record: string): string {
  return record;
}
`)
	writeFile(t, root, "src/formatter.ts", `export function formatResponse(value: string): string {
  return value;
}
`)
	writeFile(t, root, "src/handler.ts", `import { validateInput } from './validator';
import { saveToDb } from './db';
import { formatResponse } from './formatter';

export function handleRequest(input: string): string {
  const valid = validateInput(input);
  const saved = saveToDb(valid);
  return formatResponse(saved);
}
`)
	writeFile(t, root, "src/index.ts", `import { handleRequest } from './handler';

export class RequestHandler {
  handle(input: string): string {
    return handleRequest(input);
  }
}
`)
}

func symbolsByName(g *graph.Graph) map[string][]*graph.Node {
	out := make(map[string][]*graph.Node)
	for n := range g.IterNodes() {
		if !graph.IsSymbolKind(n.Label) {
			continue
		}
		if props, ok := n.Props.(*graph.SymbolProps); ok {
			out[props.Name] = append(out[props.Name], n)
		}
	}
	return out
}

func TestPipeline_MiniRepo(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)

	result, err := New(testConfig(root)).Run(context.Background())
	require.NoError(t, err)
	g := result.Graph

	assert.Equal(t, 5, result.Stats.TotalFileCount)

	for _, path := range []string{
		"src/handler.ts", "src/validator.ts", "src/db.ts", "src/formatter.ts", "src/index.ts",
	} {
		assert.NotNil(t, g.GetNode(graph.FileNodeID(path)), "File node for %s", path)
	}

	named := symbolsByName(g)
	for _, name := range []string{"handleRequest", "validateInput", "saveToDb", "formatResponse", "RequestHandler"} {
		assert.NotEmpty(t, named[name], "symbol %s", name)
	}

	// handleRequest resolves all three of its callees.
	handleID := named["handleRequest"][0].ID
	targets := make(map[string]bool)
	callsFromHandle := 0
	for _, r := range g.Outgoing(handleID) {
		if r.Type != graph.RelCalls {
			continue
		}
		callsFromHandle++
		if props, ok := g.GetNode(r.TargetID).Props.(*graph.SymbolProps); ok {
			targets[props.Name] = true
		}
	}
	assert.GreaterOrEqual(t, callsFromHandle, 3)
	for _, name := range []string{"validateInput", "saveToDb", "formatResponse"} {
		assert.True(t, targets[name], "handleRequest calls %s", name)
	}

	assert.GreaterOrEqual(t, result.Stats.ImportEdges, 1)
	assert.GreaterOrEqual(t, result.Stats.Communities, 1)

	// At least one process starts at handleRequest with three or more
	// steps.
	found := false
	for n := range g.IterNodes() {
		if n.Label != graph.KindProcess {
			continue
		}
		props := n.Props.(*graph.ProcessProps)
		if props.StepCount >= 3 && props.Trace[0] == handleID {
			found = true
		}
	}
	assert.True(t, found, "expected a process rooted at handleRequest")
	assert.True(t, g.Finalized())
}

func TestPipeline_EdgeInvariants(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)

	result, err := New(testConfig(root)).Run(context.Background())
	require.NoError(t, err)
	g := result.Graph

	memberOf := make(map[string]int)
	stepsByProcess := make(map[string]map[int]bool)
	for r := range g.IterRelationships() {
		// Every edge's endpoints exist.
		require.NotNil(t, g.GetNode(r.SourceID), "dangling source %s", r.SourceID)
		require.NotNil(t, g.GetNode(r.TargetID), "dangling target %s", r.TargetID)

		switch r.Type {
		case graph.RelCalls:
			assert.Contains(t, []float64{0.30, 0.50, 0.85, 0.90}, r.Confidence)
			assert.Contains(t, []string{"same-file", "import-resolved", "fuzzy-global"}, r.Reason)
		case graph.RelMemberOf:
			memberOf[r.SourceID]++
		case graph.RelStepInProcess:
			if stepsByProcess[r.TargetID] == nil {
				stepsByProcess[r.TargetID] = make(map[int]bool)
			}
			assert.False(t, stepsByProcess[r.TargetID][r.Step], "duplicate step %d", r.Step)
			stepsByProcess[r.TargetID][r.Step] = true
		}
	}

	// MEMBER_OF is functional.
	for id, count := range memberOf {
		assert.Equal(t, 1, count, "symbol %s belongs to %d communities", id, count)
	}

	// STEP_IN_PROCESS steps are dense 1..k.
	for processID, steps := range stepsByProcess {
		props := g.GetNode(processID).Props.(*graph.ProcessProps)
		require.Len(t, steps, props.StepCount)
		for i := 1; i <= props.StepCount; i++ {
			assert.True(t, steps[i], "process %s missing step %d", processID, i)
		}
	}
}

func TestPipeline_EmptyRepository(t *testing.T) {
	root := t.TempDir()

	completeCount := 0
	p := New(testConfig(root))
	p.OnProgress(func(phase string, percent int, detail string) {
		if phase == PhaseComplete {
			completeCount++
		}
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Graph.NodeCount())
	assert.Equal(t, 0, result.Stats.TotalFileCount)
	assert.Equal(t, 1, completeCount, "complete fires exactly once")
}

func TestPipeline_Cancellation(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testConfig(root)).Run(ctx)
	assert.Error(t, err)
}

func TestPipeline_UnparseableFileIsDropped(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)
	// Swift is classified but has no grammar at runtime; the file is
	// reported failed and the run succeeds.
	writeFile(t, root, "App.swift", "print(\"hello\")")

	result, err := New(testConfig(root)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.Stats.TotalFileCount)
	require.Len(t, result.FailedFiles, 1)
	assert.Equal(t, "App.swift", result.FailedFiles[0].Path)
}

func TestPipeline_DeterministicAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)

	first, err := New(testConfig(root)).Run(context.Background())
	require.NoError(t, err)
	second, err := New(testConfig(root)).Run(context.Background())
	require.NoError(t, err)

	var firstIDs, secondIDs []string
	first.Graph.ForEachNode(func(n *graph.Node) { firstIDs = append(firstIDs, n.ID) })
	second.Graph.ForEachNode(func(n *graph.Node) { secondIDs = append(secondIDs, n.ID) })
	assert.Equal(t, firstIDs, secondIDs, "node order is stable for identical inputs")

	var firstRels, secondRels []string
	first.Graph.ForEachRelationship(func(r *graph.Relationship) { firstRels = append(firstRels, r.ID) })
	second.Graph.ForEachRelationship(func(r *graph.Relationship) { secondRels = append(secondRels, r.ID) })
	assert.Equal(t, firstRels, secondRels)
}

func TestPipeline_ReextractFile(t *testing.T) {
	root := t.TempDir()
	writeMiniRepo(t, root)

	cfg := testConfig(root)
	p := New(cfg)
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	g := result.Graph

	// Rewrite the validator with a new symbol. The finalised graph rejects
	// re-extraction; a fresh (unfinalised) graph from a second pipeline
	// accepts it.
	writeFile(t, root, "src/validator.ts", `export function validateInputStrict(input: string): string {
  return input;
}
`)
	require.ErrorContains(t, p.ReextractFile(context.Background(), g, "src/validator.ts"), "read_only")

	fresh := graph.New()
	p2 := New(cfg)
	require.NoError(t, p2.ReextractFile(context.Background(), fresh, "src/validator.ts"))
	named := symbolsByName(fresh)
	assert.NotEmpty(t, named["validateInputStrict"])
	assert.Empty(t, named["validateInput"])
}
