// Package query is the read-only query/impact/rename toolkit over a
// persisted graph.
package query

import (
	"context"
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/codeatlas/codeatlas/internal/storage"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// symbol match.
const fuzzyThreshold = 0.82

// Toolkit answers queries against the embedded store. All operations are
// read-only.
type Toolkit struct {
	store *storage.GraphStore
}

// New wraps an opened store.
func New(store *storage.GraphStore) *Toolkit {
	return &Toolkit{store: store}
}

// Match is a symbol lookup result.
type Match struct {
	Node       *storage.StoredNode
	Similarity float64 // 1.0 for exact matches
}

// FindSymbol locates symbols by name: exact first, then Jaro-Winkler
// fuzzy over the distinct-name universe.
func (t *Toolkit) FindSymbol(ctx context.Context, name string) ([]Match, error) {
	exact, err := t.store.NodesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		matches := make([]Match, 0, len(exact))
		for _, n := range exact {
			matches = append(matches, Match{Node: n, Similarity: 1.0})
		}
		return matches, nil
	}

	names, err := t.store.AllSymbolNames(ctx)
	if err != nil {
		return nil, err
	}
	type scored struct {
		name string
		sim  float64
	}
	var candidates []scored
	for _, candidate := range names {
		sim, err := edlib.StringsSimilarity(name, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(sim) >= fuzzyThreshold {
			candidates = append(candidates, scored{candidate, float64(sim)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })

	var matches []Match
	for _, c := range candidates {
		nodes, err := t.store.NodesByName(ctx, c.name)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			matches = append(matches, Match{Node: n, Similarity: c.sim})
		}
	}
	return matches, nil
}

// Callers returns the ids of symbols with CALLS edges into id, up to
// depth hops.
func (t *Toolkit) Callers(ctx context.Context, id string, depth int) ([]string, error) {
	return t.closure(ctx, id, depth, t.callersOf)
}

// Callees returns the ids of symbols id reaches through CALLS edges, up
// to depth hops.
func (t *Toolkit) Callees(ctx context.Context, id string, depth int) ([]string, error) {
	return t.closure(ctx, id, depth, t.calleesOf)
}

func (t *Toolkit) callersOf(ctx context.Context, id string) ([]string, error) {
	edges, err := t.store.EdgesTo(ctx, id, "CALLS")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.SourceID)
	}
	return out, nil
}

func (t *Toolkit) calleesOf(ctx context.Context, id string) ([]string, error) {
	edges, err := t.store.EdgesFrom(ctx, id, "CALLS")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.TargetID)
	}
	return out, nil
}

func (t *Toolkit) closure(ctx context.Context, id string, depth int,
	step func(context.Context, string) ([]string, error)) ([]string, error) {
	if depth <= 0 {
		depth = 1
	}
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var result []string
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			neighbours, err := step(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbours {
				if visited[n] {
					continue
				}
				visited[n] = true
				result = append(result, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return result, nil
}

// Impact describes everything that may be affected by changing a symbol.
type Impact struct {
	SymbolID  string
	Callers   []string // reverse CALLS closure
	Importers []string // files importing the symbol's file
	Processes []string // processes the symbol participates in
}

// ImpactOf computes the blast radius of a symbol: transitive callers,
// importing files, and the processes it steps in.
func (t *Toolkit) ImpactOf(ctx context.Context, id string) (*Impact, error) {
	impact := &Impact{SymbolID: id}

	callers, err := t.Callers(ctx, id, 10)
	if err != nil {
		return nil, err
	}
	impact.Callers = callers

	node, err := t.store.NodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if node != nil && node.FilePath != "" {
		imports, err := t.store.EdgesTo(ctx, "File:"+node.FilePath, "IMPORTS")
		if err != nil {
			return nil, err
		}
		for _, e := range imports {
			impact.Importers = append(impact.Importers, e.SourceID)
		}
	}

	steps, err := t.store.EdgesFrom(ctx, id, "STEP_IN_PROCESS")
	if err != nil {
		return nil, err
	}
	for _, e := range steps {
		impact.Processes = append(impact.Processes, e.TargetID)
	}
	return impact, nil
}

// RenameTouch is one site a rename must edit.
type RenameTouch struct {
	FilePath string
	NodeID   string
	Line     int
}

// RenamePlan lists the definition site and every resolved caller site a
// rename of the symbol would touch. The plan is advisory; the store is
// never written.
func (t *Toolkit) RenamePlan(ctx context.Context, id string) ([]RenameTouch, error) {
	node, err := t.store.NodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	touches := []RenameTouch{{FilePath: node.FilePath, NodeID: node.ID, Line: node.StartLine}}

	callers, err := t.callersOf(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, callerID := range callers {
		caller, err := t.store.NodeByID(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if caller != nil {
			touches = append(touches, RenameTouch{FilePath: caller.FilePath, NodeID: caller.ID, Line: caller.StartLine})
		}
	}
	return touches, nil
}
