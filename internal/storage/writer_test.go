package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	caerrors "github.com/codeatlas/codeatlas/internal/errors"
	"github.com/codeatlas/codeatlas/internal/graph"
)

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	g.AddNode(graph.NewFolderNode("src"))
	g.AddNode(graph.NewFileNode("src/a.ts", "export function run() {}"))
	fn := &graph.Node{
		ID:    graph.SymbolNodeID(graph.KindFunction, "src/a.ts", "run", 1),
		Label: graph.KindFunction,
		Props: &graph.SymbolProps{Name: "run", Path: "src/a.ts", StartLine: 1, EndLine: 1, IsExported: true},
	}
	g.AddNode(fn)
	g.AddRelationship(&graph.Relationship{
		Type: graph.RelContains, SourceID: graph.FolderNodeID("src"),
		TargetID: graph.FileNodeID("src/a.ts"), Confidence: 1.0,
	})
	g.AddRelationship(&graph.Relationship{
		Type: graph.RelDefines, SourceID: graph.FileNodeID("src/a.ts"),
		TargetID: fn.ID, Confidence: 1.0,
	})
	return g
}

func TestWriteGraph_PerLabelFiles(t *testing.T) {
	dir := NewDir(t.TempDir(), "demo")
	writer, err := NewTabularWriter(dir)
	require.NoError(t, err)

	require.NoError(t, WriteGraph(writer, sampleGraph(t)))

	for _, name := range []string{"node_File.csv", "node_Folder.csv", "node_Function.csv", "relationships.csv"} {
		_, err := os.Stat(filepath.Join(dir.GraphDir(), name))
		assert.NoError(t, err, "expected %s", name)
	}

	data, err := os.ReadFile(filepath.Join(dir.GraphDir(), "node_Function.csv"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "id,name,filePath,startLine,endLine,isExported,content,description\n"))
	assert.Contains(t, content, `"run"`)
	assert.Contains(t, content, "true")
}

func TestTabularWriter_ReadOnlyAfterClose(t *testing.T) {
	dir := NewDir(t.TempDir(), "demo")
	writer, err := NewTabularWriter(dir)
	require.NoError(t, err)
	writer.Close()

	err = writer.WriteRelationships(nil)
	assert.True(t, errors.Is(err, caerrors.ErrReadOnly))
	err = writer.WriteNodes(graph.KindFile, nil)
	assert.True(t, errors.Is(err, caerrors.ErrReadOnly))
	err = writer.CreateIndex("node_id", nil)
	assert.True(t, errors.Is(err, caerrors.ErrReadOnly))
}

func TestDir_LockContention(t *testing.T) {
	previous := lockBackoff
	lockBackoff = time.Millisecond
	defer func() { lockBackoff = previous }()

	dir := NewDir(t.TempDir(), "demo")
	require.NoError(t, dir.Lock())
	defer dir.Unlock()

	// A second lock attempt exhausts its retries against the held lock.
	var serr *caerrors.StorageError
	err := dir.Lock()
	require.Error(t, err)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, caerrors.KindStorageLocked, serr.Kind)
	assert.True(t, serr.Retryable())
}

func TestDir_Metadata(t *testing.T) {
	dir := NewDir(t.TempDir(), "demo")
	require.NoError(t, os.MkdirAll(dir.Root, 0o755))

	_, err := dir.ReadMetadata()
	assert.True(t, errors.Is(err, caerrors.ErrNoIndex))

	meta := &Metadata{Repository: "demo", NodeCount: 3, RelationshipCount: 2}
	require.NoError(t, dir.WriteMetadata(meta, map[string]string{"src/a.ts": "export function run() {}"}))

	loaded, err := dir.ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.Repository)
	assert.Equal(t, 3, loaded.NodeCount)
	assert.NotEmpty(t, loaded.FileDigests["src/a.ts"], "xxhash digest recorded")
	assert.True(t, dir.Exists())
}

func TestDir_CheckFresh(t *testing.T) {
	dir := NewDir(t.TempDir(), "demo")
	require.NoError(t, os.MkdirAll(dir.Root, 0o755))

	repo := t.TempDir()
	source := "export function run() {}"
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "a.ts"), []byte(source), 0o644))

	meta := &Metadata{Repository: "demo"}
	require.NoError(t, dir.WriteMetadata(meta, map[string]string{"src/a.ts": source}))
	assert.NoError(t, dir.CheckFresh(repo), "unchanged tree is fresh")

	// Editing the file makes the index stale.
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "a.ts"), []byte(source+"\n// edited"), 0o644))
	err := dir.CheckFresh(repo)
	assert.True(t, errors.Is(err, caerrors.ErrStaleIndex))
}
