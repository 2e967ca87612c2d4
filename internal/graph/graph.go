// Package graph is the in-memory typed knowledge graph the ingestion
// pipeline builds and finalises.
package graph

import "iter"

// Graph is single-owner: the pipeline driver mutates it, workers
// communicate through value records. Iteration is insertion-ordered and
// stable across runs given identical inputs.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string // may contain ids of removed nodes; seq disambiguates

	rels     map[string]*Relationship
	relOrder []string

	// Secondary indexes
	byFile   map[string][]string // filePath -> node ids
	bySource map[string][]string // node id -> outgoing relationship ids
	byTarget map[string][]string // node id -> incoming relationship ids

	finalized bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		rels:     make(map[string]*Relationship),
		byFile:   make(map[string][]string),
		bySource: make(map[string][]string),
		byTarget: make(map[string][]string),
	}
}

// AddNode inserts a node. Duplicate ids are a no-op: the first write wins
// and the graph is unchanged. Returns true when the node was inserted.
func (g *Graph) AddNode(n *Node) bool {
	if n == nil || n.ID == "" {
		return false
	}
	if _, exists := g.nodes[n.ID]; exists {
		return false
	}
	n.seq = len(g.nodeOrder)
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	if fp := n.Props.FilePath(); fp != "" {
		g.byFile[fp] = append(g.byFile[fp], n.ID)
	}
	return true
}

// AddRelationship inserts an edge. The id derives from
// (sourceId, type, targetId); duplicates are a no-op. Edges whose
// endpoints are not present are rejected so that every stored edge
// satisfies the endpoint invariant.
func (g *Graph) AddRelationship(r *Relationship) bool {
	if r == nil {
		return false
	}
	if _, ok := g.nodes[r.SourceID]; !ok {
		return false
	}
	if _, ok := g.nodes[r.TargetID]; !ok {
		return false
	}
	if r.ID == "" {
		r.ID = RelationshipID(r.SourceID, r.Type, r.TargetID)
	}
	if _, exists := g.rels[r.ID]; exists {
		return false
	}
	r.seq = len(g.relOrder)
	g.rels[r.ID] = r
	g.relOrder = append(g.relOrder, r.ID)
	g.bySource[r.SourceID] = append(g.bySource[r.SourceID], r.ID)
	g.byTarget[r.TargetID] = append(g.byTarget[r.TargetID], r.ID)
	return true
}

// GetNode returns the node with the given id, or nil.
func (g *Graph) GetNode(id string) *Node {
	return g.nodes[id]
}

// GetRelationship returns the edge with the given id, or nil.
func (g *Graph) GetRelationship(id string) *Relationship {
	return g.rels[id]
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// RelationshipCount returns the number of live edges.
func (g *Graph) RelationshipCount() int { return len(g.rels) }

// RemoveNode removes a node and every incident edge. Returns true when a
// node was removed.
func (g *Graph) RemoveNode(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	// Snapshot first: dropRelationship rewrites the adjacency slices.
	incident := append([]string(nil), g.bySource[id]...)
	incident = append(incident, g.byTarget[id]...)
	for _, relID := range incident {
		g.dropRelationship(relID)
	}
	delete(g.bySource, id)
	delete(g.byTarget, id)
	if fp := n.Props.FilePath(); fp != "" {
		g.byFile[fp] = removeString(g.byFile[fp], id)
		if len(g.byFile[fp]) == 0 {
			delete(g.byFile, fp)
		}
	}
	delete(g.nodes, id)
	return true
}

func (g *Graph) dropRelationship(relID string) {
	r, ok := g.rels[relID]
	if !ok {
		return
	}
	delete(g.rels, relID)
	g.bySource[r.SourceID] = removeString(g.bySource[r.SourceID], relID)
	g.byTarget[r.TargetID] = removeString(g.byTarget[r.TargetID], relID)
}

// RemoveNodesByFile removes every node whose filePath equals path, with
// all incident edges, and returns the number of nodes removed. Used when
// a single file is re-extracted during ingestion.
func (g *Graph) RemoveNodesByFile(path string) int {
	ids := g.byFile[path]
	if len(ids) == 0 {
		return 0
	}
	// Copy: RemoveNode mutates the index slice.
	toRemove := make([]string, len(ids))
	copy(toRemove, ids)
	removed := 0
	for _, id := range toRemove {
		if g.RemoveNode(id) {
			removed++
		}
	}
	return removed
}

// NodesByFile returns the ids of nodes whose filePath equals path, in
// insertion order.
func (g *Graph) NodesByFile(path string) []string {
	ids := g.byFile[path]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Nodes returns a snapshot slice of all live nodes in insertion order.
// A new slice is allocated on every call.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for n := range g.IterNodes() {
		out = append(out, n)
	}
	return out
}

// Relationships returns a snapshot slice of all live edges in insertion
// order. A new slice is allocated on every call.
func (g *Graph) Relationships() []*Relationship {
	out := make([]*Relationship, 0, len(g.rels))
	for r := range g.IterRelationships() {
		out = append(out, r)
	}
	return out
}

// IterNodes iterates live nodes lazily in insertion order.
func (g *Graph) IterNodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for i, id := range g.nodeOrder {
			n, ok := g.nodes[id]
			if !ok || n.seq != i {
				continue // removed, or re-added at a later position
			}
			if !yield(n) {
				return
			}
		}
	}
}

// IterRelationships iterates live edges lazily in insertion order.
func (g *Graph) IterRelationships() iter.Seq[*Relationship] {
	return func(yield func(*Relationship) bool) {
		for i, id := range g.relOrder {
			r, ok := g.rels[id]
			if !ok || r.seq != i {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// ForEachNode calls fn for every live node in insertion order.
func (g *Graph) ForEachNode(fn func(*Node)) {
	for n := range g.IterNodes() {
		fn(n)
	}
}

// ForEachRelationship calls fn for every live edge in insertion order.
func (g *Graph) ForEachRelationship(fn func(*Relationship)) {
	for r := range g.IterRelationships() {
		fn(r)
	}
}

// Outgoing returns the outgoing edges of a node in insertion order.
func (g *Graph) Outgoing(id string) []*Relationship {
	relIDs := g.bySource[id]
	out := make([]*Relationship, 0, len(relIDs))
	for _, relID := range relIDs {
		if r, ok := g.rels[relID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Incoming returns the incoming edges of a node in insertion order.
func (g *Graph) Incoming(id string) []*Relationship {
	relIDs := g.byTarget[id]
	out := make([]*Relationship, 0, len(relIDs))
	for _, relID := range relIDs {
		if r, ok := g.rels[relID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Finalize marks the graph complete. Finalisation is a one-way gate: the
// persisted form is read-only and the in-memory form is discarded by the
// caller after writing.
func (g *Graph) Finalize() { g.finalized = true }

// Finalized reports whether Finalize has been called.
func (g *Graph) Finalized() bool { return g.finalized }

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
