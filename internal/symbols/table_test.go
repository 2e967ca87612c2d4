package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeatlas/codeatlas/internal/graph"
)

func TestTable_ExactLastWriterWins(t *testing.T) {
	table := NewTable()
	table.Add("src/a.ts", "render", "Function:src/a.ts:render:1", graph.KindFunction)
	table.Add("src/a.ts", "render", "Function:src/a.ts:render:42", graph.KindFunction)

	assert.Equal(t, "Function:src/a.ts:render:42", table.LookupExact("src/a.ts", "render"))
	assert.Equal(t, "", table.LookupExact("src/b.ts", "render"))
}

func TestTable_FuzzyPreservesDuplicatesInOrder(t *testing.T) {
	table := NewTable()
	table.Add("src/a.ts", "render", "Function:src/a.ts:render:1", graph.KindFunction)
	table.Add("src/b.ts", "render", "Function:src/b.ts:render:5", graph.KindFunction)
	table.Add("src/a.ts", "render", "Function:src/a.ts:render:1", graph.KindFunction)

	hits := table.LookupFuzzy("render")
	assert.Len(t, hits, 3, "append-only, duplicates preserved")
	assert.Equal(t, "Function:src/a.ts:render:1", hits[0].NodeID)
	assert.Equal(t, "Function:src/b.ts:render:5", hits[1].NodeID)
	assert.Empty(t, table.LookupFuzzy("missing"))
}

func TestTable_Stats(t *testing.T) {
	table := NewTable()
	table.Add("src/a.ts", "render", "n1", graph.KindFunction)
	table.Add("src/a.ts", "mount", "n2", graph.KindFunction)
	table.Add("src/b.ts", "render", "n3", graph.KindFunction)

	stats := table.GetStats()
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 2, stats.GlobalSymbolCount, "distinct names, not entries")
}

func TestTable_Clear(t *testing.T) {
	table := NewTable()
	table.Add("src/a.ts", "render", "n1", graph.KindFunction)
	table.Clear()

	assert.Equal(t, "", table.LookupExact("src/a.ts", "render"))
	assert.Empty(t, table.LookupFuzzy("render"))
	assert.Equal(t, Stats{}, table.GetStats())
}
