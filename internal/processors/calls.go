package processors

import (
	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/resolve"
	"github.com/codeatlas/codeatlas/internal/symbols"
)

// Calibrated confidence per resolution tier.
const (
	ConfidenceSameFile       = 0.85
	ConfidenceImportResolved = 0.90
	ConfidenceFuzzyUnique    = 0.50
	ConfidenceFuzzyAmbiguous = 0.30
)

const (
	ReasonSameFile       = "same-file"
	ReasonImportResolved = "import-resolved"
	ReasonFuzzyGlobal    = "fuzzy-global"
)

// CallStats summarises one call-resolution pass.
type CallStats struct {
	Total    int
	Resolved int
	Dropped  int
}

// ResolveCalls turns raw call sites into at most one CALLS edge each,
// trying same-file, then import-resolved, then fuzzy-global resolution.
// Unresolvable calls are dropped silently. progress, when non-nil, is
// invoked every few hundred records with (processed, total).
func ResolveCalls(g *graph.Graph, table *symbols.Table, imports *resolve.ImportMap,
	calls []extract.CallRecord, progress func(processed, total int)) CallStats {

	stats := CallStats{Total: len(calls)}
	const progressEvery = 250

	for i, call := range calls {
		if progress != nil && (i%progressEvery == 0 || i == len(calls)-1) {
			progress(i+1, len(calls))
		}

		targetID, confidence, reason := resolveOne(table, imports, call)
		if targetID == "" {
			stats.Dropped++
			continue
		}
		added := g.AddRelationship(&graph.Relationship{
			Type:       graph.RelCalls,
			SourceID:   call.SourceID,
			TargetID:   targetID,
			Confidence: confidence,
			Reason:     reason,
		})
		if added {
			stats.Resolved++
		}
	}
	return stats
}

// resolveOne applies the resolution priority: first match wins.
func resolveOne(table *symbols.Table, imports *resolve.ImportMap, call extract.CallRecord) (string, float64, string) {
	// 1. Same file.
	if id := table.LookupExact(call.FilePath, call.CalledName); id != "" {
		return id, ConfidenceSameFile, ReasonSameFile
	}

	// 2. Through a resolved import, first matching import wins.
	for _, targetFile := range imports.Targets(call.FilePath) {
		if id := table.LookupExact(targetFile, call.CalledName); id != "" {
			return id, ConfidenceImportResolved, ReasonImportResolved
		}
	}

	// 3. Fuzzy by name alone; ambiguity lowers confidence and the first
	// hit (stable index insertion order) is taken.
	if hits := table.LookupFuzzy(call.CalledName); len(hits) > 0 {
		confidence := ConfidenceFuzzyUnique
		if len(hits) > 1 {
			confidence = ConfidenceFuzzyAmbiguous
		}
		return hits[0].NodeID, confidence, ReasonFuzzyGlobal
	}

	return "", 0, ""
}
