package processors

import (
	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/symbols"
)

// ResolveHeritage turns extends/implements/trait-impl records into typed
// edges. Names resolve through the fuzzy index (first hit); unresolved
// names get a deterministic synthesised node so the edge endpoints exist.
// Self-inheritance is dropped.
func ResolveHeritage(g *graph.Graph, table *symbols.Table, records []extract.HeritageRecord) {
	for _, rec := range records {
		sourceID := resolveHeritageName(g, table, rec.FilePath, rec.ClassName)
		targetID := resolveHeritageName(g, table, rec.FilePath, rec.ParentName)
		if sourceID == "" || targetID == "" || sourceID == targetID {
			continue
		}

		relType := graph.RelExtends
		reason := ""
		switch rec.Kind {
		case extract.HeritageImplements:
			relType = graph.RelImplements
		case extract.HeritageTraitImpl:
			relType = graph.RelImplements
			reason = "trait-impl"
		}

		g.AddRelationship(&graph.Relationship{
			Type:       relType,
			SourceID:   sourceID,
			TargetID:   targetID,
			Confidence: 1.0,
			Reason:     reason,
		})
	}
}

// resolveHeritageName looks a class-like name up in the symbol table; on
// a miss it synthesises a placeholder Class node keyed by
// (kind, filePath, name) so resolution stays deterministic.
func resolveHeritageName(g *graph.Graph, table *symbols.Table, filePath, name string) string {
	if name == "" {
		return ""
	}
	if hits := table.LookupFuzzy(name); len(hits) > 0 {
		return hits[0].NodeID
	}
	id := graph.SymbolNodeID(graph.KindClass, filePath, name, 0)
	g.AddNode(&graph.Node{
		ID:    id,
		Label: graph.KindClass,
		Props: &graph.SymbolProps{Name: name, Path: filePath},
	})
	return id
}
