package community

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/graph"
)

func addSymbol(g *graph.Graph, filePath, name string) string {
	id := graph.SymbolNodeID(graph.KindFunction, filePath, name, 1)
	g.AddNode(&graph.Node{
		ID:    id,
		Label: graph.KindFunction,
		Props: &graph.SymbolProps{Name: name, Path: filePath, StartLine: 1},
	})
	return id
}

func addCall(g *graph.Graph, from, to string) {
	g.AddRelationship(&graph.Relationship{
		Type: graph.RelCalls, SourceID: from, TargetID: to, Confidence: 0.9,
	})
}

func TestDetect_EmptyGraph(t *testing.T) {
	result := Detect(graph.New(), nil, nil)
	assert.Empty(t, result.Communities)
	assert.Empty(t, result.Memberships)
}

func TestDetect_MembershipIsDisjoint(t *testing.T) {
	g := graph.New()
	a := addSymbol(g, "src/auth/login.ts", "loginUser")
	b := addSymbol(g, "src/auth/logout.ts", "logoutUser")
	c := addSymbol(g, "src/billing/invoice.ts", "createInvoice")
	d := addSymbol(g, "src/billing/charge.ts", "chargeCard")
	addCall(g, a, b)
	addCall(g, c, d)

	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 2, "two weakly-connected components")

	seen := make(map[string]string)
	for _, m := range result.Memberships {
		prev, dup := seen[m.NodeID]
		assert.False(t, dup, "symbol %s in both %s and %s", m.NodeID, prev, m.CommunityID)
		seen[m.NodeID] = m.CommunityID
	}
	assert.Len(t, seen, 4, "every symbol assigned exactly once")
	assert.Equal(t, seen[a], seen[b])
	assert.Equal(t, seen[c], seen[d])
	assert.NotEqual(t, seen[a], seen[c])
}

func TestDetect_ImportsJoinFiles(t *testing.T) {
	g := graph.New()
	a := addSymbol(g, "src/a.ts", "alpha")
	b := addSymbol(g, "src/b.ts", "beta")
	g.AddNode(graph.NewFileNode("src/a.ts", ""))
	g.AddNode(graph.NewFileNode("src/b.ts", ""))
	g.AddRelationship(&graph.Relationship{
		Type:     graph.RelImports,
		SourceID: graph.FileNodeID("src/a.ts"),
		TargetID: graph.FileNodeID("src/b.ts"),
	})

	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 1, "imports connect the two files' symbols")

	memberOf := make(map[string]string)
	for _, m := range result.Memberships {
		memberOf[m.NodeID] = m.CommunityID
	}
	assert.Equal(t, memberOf[a], memberOf[b])
}

func TestDetect_CohesionFullyInternal(t *testing.T) {
	g := graph.New()
	a := addSymbol(g, "src/x.ts", "handleRequest")
	b := addSymbol(g, "src/x.ts", "validateRequest")
	c := addSymbol(g, "src/x.ts", "saveRequest")
	addCall(g, a, b)
	addCall(g, a, c)

	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 1)
	props := result.Communities[0].Props.(*graph.CommunityProps)
	assert.InDelta(t, 1.0, props.Cohesion, 1e-9, "no boundary edges")
	assert.Equal(t, 3, props.SymbolCount)
}

func TestDetect_LabelFromCommonStem(t *testing.T) {
	g := graph.New()
	a := addSymbol(g, "src/x.ts", "parseHeader")
	b := addSymbol(g, "src/x.ts", "parseBody")
	addCall(g, a, b)

	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 1)
	props := result.Communities[0].Props.(*graph.CommunityProps)
	assert.Equal(t, "pars", props.HeuristicLabel, "shared porter2 stem of parse*")
	assert.Contains(t, props.Keywords, "parse")
}

func TestDetect_LabelFallsBackToTopScore(t *testing.T) {
	g := graph.New()
	a := addSymbol(g, "src/x.ts", "alpha")
	b := addSymbol(g, "src/x.ts", "omega")
	addCall(g, a, b)

	scores := map[string]float64{a: 0.5, b: 9.0}
	result := Detect(g, scores, nil)
	require.Len(t, result.Communities, 1)
	props := result.Communities[0].Props.(*graph.CommunityProps)
	assert.Equal(t, "omega", props.HeuristicLabel)
}

func TestDetect_PaletteCycles(t *testing.T) {
	g := graph.New()
	for i := 0; i < 14; i++ {
		addSymbol(g, fmt.Sprintf("src/f%02d.ts", i), fmt.Sprintf("fn%02d", i))
	}

	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 14, "isolated symbols form singleton communities")
	for i, c := range result.Communities {
		props := c.Props.(*graph.CommunityProps)
		assert.Equal(t, Colors[i%12], props.Color)
	}
}

func TestDetect_KeywordsCapped(t *testing.T) {
	g := graph.New()
	var prev string
	for i := 0; i < 12; i++ {
		id := addSymbol(g, "src/kw.ts", fmt.Sprintf("word%02dAlpha%02dBeta%02dGamma", i, i, i))
		if prev != "" {
			addCall(g, prev, id)
		}
		prev = id
	}
	result := Detect(g, nil, nil)
	require.Len(t, result.Communities, 1)
	props := result.Communities[0].Props.(*graph.CommunityProps)
	assert.LessOrEqual(t, len(props.Keywords), 8)
}
