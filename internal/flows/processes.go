// Package flows enumerates bounded, acyclic call chains from
// high-scoring entry points and materialises them as Process nodes.
package flows

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/walker"
)

// Defaults mirroring the pipeline configuration.
const (
	DefaultMaxTraceDepth = 8
	DefaultMinSteps      = 3
	DefaultMaxProcesses  = 50

	// MinTraceConfidence gates which CALLS edges traversal follows.
	MinTraceConfidence = 0.5
)

// Options tunes process enumeration.
type Options struct {
	MaxTraceDepth      int
	MinSteps           int
	MaxProcesses       int
	MinTraceConfidence float64
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.MaxTraceDepth <= 0 {
		o.MaxTraceDepth = DefaultMaxTraceDepth
	}
	if o.MinSteps <= 0 {
		o.MinSteps = DefaultMinSteps
	}
	if o.MaxProcesses <= 0 {
		o.MaxProcesses = DefaultMaxProcesses
	}
	if o.MinTraceConfidence <= 0 {
		o.MinTraceConfidence = MinTraceConfidence
	}
	return o
}

// Trace is one accepted execution flow before materialisation.
type Trace struct {
	EntryID    string
	TerminalID string
	Steps      []string // node ids, entry first
	Confidence float64  // minimum edge confidence along the chain
}

// Detect enumerates processes. Entries are the top-scoring symbols per
// community (the per-community quota derives from maxProcesses), test
// files excluded. Traversal follows the strongest CALLS edge from each
// node, never revisits a node within a trace, and stops at the depth
// cap. progress receives (message, percent).
func Detect(g *graph.Graph, scores map[string]float64, membership map[string]string,
	opts Options, progress func(message string, percent int)) []*Trace {

	opts = opts.WithDefaults()
	report := func(msg string, pct int) {
		if progress != nil {
			progress(msg, pct)
		}
	}

	report("selecting entry points", 0)
	entries := selectEntries(g, scores, membership, opts.MaxProcesses)

	report(fmt.Sprintf("tracing %d entry points", len(entries)), 25)
	var traces []*Trace
	for i, entry := range entries {
		if trace := walk(g, entry, scores, opts); trace != nil {
			traces = append(traces, trace)
		}
		if len(entries) > 0 && i%100 == 99 {
			report("tracing execution flows", 25+50*i/len(entries))
		}
	}

	// Prefer longer, then higher-confidence traces when capping.
	sort.SliceStable(traces, func(i, j int) bool {
		if len(traces[i].Steps) != len(traces[j].Steps) {
			return len(traces[i].Steps) > len(traces[j].Steps)
		}
		return traces[i].Confidence > traces[j].Confidence
	})
	if len(traces) > opts.MaxProcesses {
		traces = traces[:opts.MaxProcesses]
	}
	report(fmt.Sprintf("accepted %d processes", len(traces)), 100)
	return traces
}

// selectEntries picks the top-N scored symbols per community, N derived
// from the overall process cap.
func selectEntries(g *graph.Graph, scores map[string]float64, membership map[string]string, maxProcesses int) []string {
	byCommunity := make(map[string][]string)
	var communityOrder []string
	for n := range g.IterNodes() {
		if !graph.IsSymbolKind(n.Label) {
			continue
		}
		if scores[n.ID] <= 0 {
			continue
		}
		if fp := n.Props.FilePath(); fp != "" && walker.IsTestFile(fp) {
			continue
		}
		c := membership[n.ID]
		if _, ok := byCommunity[c]; !ok {
			communityOrder = append(communityOrder, c)
		}
		byCommunity[c] = append(byCommunity[c], n.ID)
	}
	if len(byCommunity) == 0 {
		return nil
	}

	quota := maxProcesses / len(byCommunity)
	if quota < 1 {
		quota = 1
	}

	var entries []string
	for _, c := range communityOrder {
		ids := byCommunity[c]
		sort.SliceStable(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })
		if len(ids) > quota {
			ids = ids[:quota]
		}
		entries = append(entries, ids...)
	}
	return entries
}

// walk follows the strongest eligible CALLS edge from the entry until a
// dead end, a revisit, or the depth cap. Returns nil when the chain is
// shorter than minSteps.
func walk(g *graph.Graph, entryID string, scores map[string]float64, opts Options) *Trace {
	steps := []string{entryID}
	visited := map[string]bool{entryID: true}
	minConfidence := 1.0

	current := entryID
	for len(steps) < opts.MaxTraceDepth {
		next, confidence := bestCallee(g, current, visited, scores, opts.MinTraceConfidence)
		if next == "" {
			break
		}
		steps = append(steps, next)
		visited[next] = true
		if confidence < minConfidence {
			minConfidence = confidence
		}
		current = next
	}

	if len(steps) < opts.MinSteps {
		return nil
	}
	return &Trace{
		EntryID:    entryID,
		TerminalID: steps[len(steps)-1],
		Steps:      steps,
		Confidence: minConfidence,
	}
}

// bestCallee picks the outgoing CALLS edge with highest confidence;
// ties break by callee entry score descending, then insertion order.
func bestCallee(g *graph.Graph, id string, visited map[string]bool, scores map[string]float64, minConfidence float64) (string, float64) {
	best := ""
	bestConfidence := 0.0
	bestScore := 0.0
	for _, r := range g.Outgoing(id) {
		if r.Type != graph.RelCalls || r.Confidence < minConfidence {
			continue
		}
		if visited[r.TargetID] {
			continue
		}
		score := scores[r.TargetID]
		if best == "" || r.Confidence > bestConfidence ||
			(r.Confidence == bestConfidence && score > bestScore) {
			best = r.TargetID
			bestConfidence = r.Confidence
			bestScore = score
		}
	}
	return best, bestConfidence
}

// Materialise emits a Process node per trace plus its STEP_IN_PROCESS
// edges, classifying each trace against the community memberships.
func Materialise(g *graph.Graph, traces []*Trace, membership map[string]string) int {
	created := 0
	for i, trace := range traces {
		processID := fmt.Sprintf("Process:%d", i)

		var communities []string
		seen := make(map[string]bool)
		for _, step := range trace.Steps {
			c := membership[step]
			if c != "" && !seen[c] {
				seen[c] = true
				communities = append(communities, c)
			}
		}
		processType := graph.ProcessTypeIntraCommunity
		if len(communities) > 1 {
			processType = graph.ProcessTypeCrossCommunity
		}

		node := &graph.Node{
			ID:    processID,
			Label: graph.KindProcess,
			Props: &graph.ProcessProps{
				HeuristicLabel: traceLabel(g, trace),
				ProcessType:    processType,
				StepCount:      len(trace.Steps),
				Communities:    communities,
				EntryPointID:   trace.EntryID,
				TerminalID:     trace.TerminalID,
				Trace:          trace.Steps,
			},
		}
		if !g.AddNode(node) {
			continue
		}
		for step, symbolID := range trace.Steps {
			g.AddRelationship(&graph.Relationship{
				Type:       graph.RelStepInProcess,
				SourceID:   symbolID,
				TargetID:   processID,
				Confidence: 1.0,
				Step:       step + 1,
			})
		}
		created++
	}
	return created
}

// traceLabel derives "EntryName → TerminalName" in PascalCase.
func traceLabel(g *graph.Graph, trace *Trace) string {
	return pascalName(g, trace.EntryID) + " → " + pascalName(g, trace.TerminalID)
}

func pascalName(g *graph.Graph, id string) string {
	n := g.GetNode(id)
	if n == nil {
		return ""
	}
	props, ok := n.Props.(*graph.SymbolProps)
	if !ok {
		return ""
	}
	return toPascal(props.Name)
}

// toPascal upper-cases each identifier token: handleRequest ->
// HandleRequest, save_to_db -> SaveToDb.
func toPascal(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.':
			upperNext = true
		case upperNext:
			b.WriteRune(toUpper(r))
			upperNext = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
