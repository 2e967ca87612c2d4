// Package processors turns extraction records into graph nodes and
// edges: file/folder structure, resolved calls and heritage relations.
package processors

import (
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/graph"
)

// BuildStructure materialises Folder nodes for every directory prefix of
// every indexed file, File nodes, and parent-to-child CONTAINS edges.
// Shared ancestors are de-duplicated by the graph's idempotent adds.
func BuildStructure(g *graph.Graph, filePaths []string, contents map[string]string) {
	// Folders first, parents before children, so edge endpoints exist.
	folderSet := make(map[string]bool)
	for _, fp := range filePaths {
		for _, dir := range dirPrefixes(fp) {
			folderSet[dir] = true
		}
	}
	folders := make([]string, 0, len(folderSet))
	for dir := range folderSet {
		folders = append(folders, dir)
	}
	sort.Strings(folders)

	for _, dir := range folders {
		g.AddNode(graph.NewFolderNode(dir))
		if parent := parentDir(dir); parent != "" {
			g.AddRelationship(&graph.Relationship{
				Type:       graph.RelContains,
				SourceID:   graph.FolderNodeID(parent),
				TargetID:   graph.FolderNodeID(dir),
				Confidence: 1.0,
			})
		}
	}

	for _, fp := range filePaths {
		g.AddNode(graph.NewFileNode(fp, contents[fp]))
		if parent := parentDir(fp); parent != "" {
			g.AddRelationship(&graph.Relationship{
				Type:       graph.RelContains,
				SourceID:   graph.FolderNodeID(parent),
				TargetID:   graph.FileNodeID(fp),
				Confidence: 1.0,
			})
		}
	}
}

// dirPrefixes returns every directory prefix of a file path, shallowest
// first: "a/b/c.ts" -> ["a", "a/b"].
func dirPrefixes(filePath string) []string {
	var out []string
	for i, r := range filePath {
		if r == '/' {
			out = append(out, filePath[:i])
		}
	}
	return out
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}
