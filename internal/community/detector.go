// Package community partitions symbol nodes into disjoint clusters over
// the CALLS and IMPORTS structure, labels them heuristically and scores
// their cohesion.
package community

import (
	"fmt"
	"sort"
	"strings"

	"github.com/surgebase/porter2"

	"github.com/codeatlas/codeatlas/internal/graph"
)

// Colors is the fixed palette; community i gets Colors[i mod 12].
var Colors = [12]string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2",
	"#59a14f", "#edc948", "#b07aa1", "#ff9da7",
	"#9c755f", "#bab0ac", "#86bcb6", "#d37295",
}

// smallGraphThreshold: below this many symbols the component partition is
// kept as-is, without modularity refinement.
const smallGraphThreshold = 10

// maxRefinementSweeps bounds the best-neighbour reassignment loop.
const maxRefinementSweeps = 10

const maxKeywords = 8

// Membership assigns one symbol to its community.
type Membership struct {
	NodeID      string
	CommunityID string
}

// Stats summarises a detection pass.
type Stats struct {
	Communities int
	Symbols     int
}

// Result carries the derived Community nodes and the memberships to
// materialise as MEMBER_OF edges.
type Result struct {
	Communities []*graph.Node
	Memberships []Membership
	Stats       Stats
}

// Detect partitions the graph's symbol nodes. Symbols are connected by
// CALLS edges directly and transitively through their files' IMPORTS
// edges, then refined by bounded best-neighbour sweeps maximising a
// directed-modularity score. Deterministic for a given graph. progress,
// when non-nil, fires every few hundred processed items.
func Detect(g *graph.Graph, scores map[string]float64, progress func(done, total int)) *Result {
	d := newDetector(g)
	if len(d.symbols) == 0 {
		return &Result{}
	}
	d.unionComponents(progress)
	if len(d.symbols) >= smallGraphThreshold {
		d.refine()
	}
	return d.buildResult(scores)
}

type detector struct {
	g       *graph.Graph
	symbols []string       // symbol node ids, insertion order
	index   map[string]int // id -> position in symbols

	// call adjacency between symbols (directed, insertion order)
	callOut map[int][]int
	callIn  map[int][]int

	assignment []int // symbol position -> community index
}

func newDetector(g *graph.Graph) *detector {
	d := &detector{
		g:       g,
		index:   make(map[string]int),
		callOut: make(map[int][]int),
		callIn:  make(map[int][]int),
	}
	for n := range g.IterNodes() {
		if graph.IsSymbolKind(n.Label) {
			d.index[n.ID] = len(d.symbols)
			d.symbols = append(d.symbols, n.ID)
		}
	}
	for r := range g.IterRelationships() {
		if r.Type != graph.RelCalls {
			continue
		}
		si, ok1 := d.index[r.SourceID]
		ti, ok2 := d.index[r.TargetID]
		if !ok1 || !ok2 || si == ti {
			continue
		}
		d.callOut[si] = append(d.callOut[si], ti)
		d.callIn[ti] = append(d.callIn[ti], si)
	}
	return d
}

// unionComponents computes weakly-connected components over CALLS plus
// the file-level IMPORTS structure: symbols sharing a file are joined,
// and an IMPORTS edge joins the two files' symbols.
func (d *detector) unionComponents(progress func(done, total int)) {
	parent := make([]int, len(d.symbols))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for from, tos := range d.callOut {
		for _, to := range tos {
			union(from, to)
		}
	}

	// File co-location and import reachability.
	fileAnchor := make(map[string]int) // filePath -> first symbol position
	for i, id := range d.symbols {
		n := d.g.GetNode(id)
		fp := n.Props.FilePath()
		if fp == "" {
			continue
		}
		if anchor, ok := fileAnchor[fp]; ok {
			union(anchor, i)
		} else {
			fileAnchor[fp] = i
		}
	}
	processed := 0
	for r := range d.g.IterRelationships() {
		if r.Type != graph.RelImports {
			continue
		}
		fromFile := strings.TrimPrefix(r.SourceID, "File:")
		toFile := strings.TrimPrefix(r.TargetID, "File:")
		a, ok1 := fileAnchor[fromFile]
		b, ok2 := fileAnchor[toFile]
		if ok1 && ok2 {
			union(a, b)
		}
		processed++
		if progress != nil && processed%500 == 0 {
			progress(processed, processed)
		}
	}

	// Densify component roots into community indexes, ordered by first
	// member position for stability.
	d.assignment = make([]int, len(d.symbols))
	rootToCommunity := make(map[int]int)
	for i := range d.symbols {
		root := find(i)
		c, ok := rootToCommunity[root]
		if !ok {
			c = len(rootToCommunity)
			rootToCommunity[root] = c
		}
		d.assignment[i] = c
	}
}

// refine runs bounded best-neighbour sweeps: each symbol may move to a
// neighbouring community when the move improves the directed-modularity
// delta. Node order and lowest-community tie-breaks keep it
// deterministic.
func (d *detector) refine() {
	m := 0
	outDeg := make([]int, len(d.symbols))
	inDeg := make([]int, len(d.symbols))
	for i := range d.symbols {
		outDeg[i] = len(d.callOut[i])
		inDeg[i] = len(d.callIn[i])
		m += outDeg[i]
	}
	if m == 0 {
		return
	}

	for sweep := 0; sweep < maxRefinementSweeps; sweep++ {
		moved := false
		for i := range d.symbols {
			current := d.assignment[i]
			best := current
			bestGain := 0.0

			for _, candidate := range d.neighbourCommunities(i) {
				if candidate == current {
					continue
				}
				gain := d.moveGain(i, candidate, outDeg, inDeg, m) -
					d.moveGain(i, current, outDeg, inDeg, m)
				if gain > bestGain || (gain == bestGain && gain > 0 && candidate < best) {
					bestGain = gain
					best = candidate
				}
			}
			if best != current {
				d.assignment[i] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	d.renumber()
}

// neighbourCommunities lists the communities adjacent to symbol i, in
// first-seen order.
func (d *detector) neighbourCommunities(i int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, j := range d.callOut[i] {
		c := d.assignment[j]
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, j := range d.callIn[i] {
		c := d.assignment[j]
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// moveGain evaluates the directed-modularity contribution of placing
// symbol i into community c.
func (d *detector) moveGain(i, c int, outDeg, inDeg []int, m int) float64 {
	links := 0
	var communityIn, communityOut int
	for j := range d.symbols {
		if j == i || d.assignment[j] != c {
			continue
		}
		communityOut += outDeg[j]
		communityIn += inDeg[j]
	}
	for _, j := range d.callOut[i] {
		if j != i && d.assignment[j] == c {
			links++
		}
	}
	for _, j := range d.callIn[i] {
		if j != i && d.assignment[j] == c {
			links++
		}
	}
	fm := float64(m)
	expected := float64(outDeg[i])*float64(communityIn) + float64(inDeg[i])*float64(communityOut)
	return float64(links)/fm - expected/(fm*fm)
}

// renumber compacts community indexes after refinement, keeping
// first-member order.
func (d *detector) renumber() {
	mapping := make(map[int]int)
	for i := range d.symbols {
		c := d.assignment[i]
		if _, ok := mapping[c]; !ok {
			mapping[c] = len(mapping)
		}
	}
	for i := range d.symbols {
		d.assignment[i] = mapping[d.assignment[i]]
	}
}

func (d *detector) buildResult(scores map[string]float64) *Result {
	communityCount := 0
	for _, c := range d.assignment {
		if c+1 > communityCount {
			communityCount = c + 1
		}
	}
	members := make([][]int, communityCount)
	for i, c := range d.assignment {
		members[c] = append(members[c], i)
	}

	result := &Result{Stats: Stats{Communities: communityCount, Symbols: len(d.symbols)}}
	for c := 0; c < communityCount; c++ {
		names := make([]string, 0, len(members[c]))
		ids := make([]string, 0, len(members[c]))
		for _, i := range members[c] {
			id := d.symbols[i]
			ids = append(ids, id)
			if props, ok := d.g.GetNode(id).Props.(*graph.SymbolProps); ok {
				names = append(names, props.Name)
			}
		}

		label := commonStemLabel(names)
		if label == "" {
			label = topScoredName(ids, names, scores)
		}
		intra, boundary := d.edgeCounts(members[c], c)
		cohesion := 1.0
		if intra+boundary > 0 {
			cohesion = float64(intra) / float64(intra+boundary)
		}

		communityID := fmt.Sprintf("Community:%d", c)
		node := &graph.Node{
			ID:    communityID,
			Label: graph.KindCommunity,
			Props: &graph.CommunityProps{
				Name:           label,
				HeuristicLabel: label,
				Keywords:       topKeywords(names),
				Cohesion:       cohesion,
				SymbolCount:    len(members[c]),
				Color:          Colors[c%len(Colors)],
			},
		}
		result.Communities = append(result.Communities, node)
		for _, id := range ids {
			result.Memberships = append(result.Memberships, Membership{NodeID: id, CommunityID: communityID})
		}
	}
	return result
}

// edgeCounts tallies intra-community and boundary CALLS edges for a
// community's members.
func (d *detector) edgeCounts(member []int, c int) (intra, boundary int) {
	for _, i := range member {
		for _, j := range d.callOut[i] {
			if d.assignment[j] == c {
				intra++
			} else {
				boundary++
			}
		}
		for _, j := range d.callIn[i] {
			if d.assignment[j] != c {
				boundary++
			}
		}
	}
	return intra, boundary
}

// tokenize splits an identifier into lowercase tokens on camelCase and
// snake/kebab boundaries.
func tokenize(name string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '$':
			flush()
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := rune(name[i-1])
				if prev >= 'a' && prev <= 'z' {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// commonStemLabel returns the longest stem shared by every member name,
// or "" when none exists.
func commonStemLabel(names []string) string {
	if len(names) < 2 {
		return ""
	}
	var shared map[string]bool
	for _, name := range names {
		stems := make(map[string]bool)
		for _, tok := range tokenize(name) {
			if len(tok) >= 3 {
				stems[porter2.Stem(tok)] = true
			}
		}
		if shared == nil {
			shared = stems
			continue
		}
		for s := range shared {
			if !stems[s] {
				delete(shared, s)
			}
		}
		if len(shared) == 0 {
			return ""
		}
	}
	best := ""
	for s := range shared {
		if len(s) > len(best) || (len(s) == len(best) && s < best) {
			best = s
		}
	}
	return best
}

// topScoredName falls back to the member with the highest entry-point
// score; insertion order breaks ties.
func topScoredName(ids, names []string, scores map[string]float64) string {
	best := ""
	bestScore := -1.0
	for i, id := range ids {
		if i >= len(names) {
			break
		}
		if s := scores[id]; s > bestScore {
			bestScore = s
			best = names[i]
		}
	}
	if best == "" && len(names) > 0 {
		best = names[0]
	}
	return best
}

// topKeywords ranks member-name tokens by term frequency, capped at 8.
func topKeywords(names []string) []string {
	freq := make(map[string]int)
	order := make(map[string]int)
	for _, name := range names {
		for _, tok := range tokenize(name) {
			if len(tok) < 3 {
				continue
			}
			if _, ok := freq[tok]; !ok {
				order[tok] = len(order)
			}
			freq[tok]++
		}
	}
	tokens := make([]string, 0, len(freq))
	for tok := range freq {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if freq[tokens[i]] != freq[tokens[j]] {
			return freq[tokens[i]] > freq[tokens[j]]
		}
		return order[tokens[i]] < order[tokens[j]]
	})
	if len(tokens) > maxKeywords {
		tokens = tokens[:maxKeywords]
	}
	return tokens
}
