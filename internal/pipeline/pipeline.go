// Package pipeline drives the ingestion stages in strict order: walk,
// parallel per-file extraction, structure, symbol table, import
// resolution, calls and heritage, entry-point scoring, communities,
// processes, finalisation. Stages after extraction are in-memory
// transformations over the graph, all on the driver goroutine.
package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas/codeatlas/internal/community"
	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/entrypoint"
	caerrors "github.com/codeatlas/codeatlas/internal/errors"
	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/flows"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/parser"
	"github.com/codeatlas/codeatlas/internal/processors"
	"github.com/codeatlas/codeatlas/internal/resolve"
	"github.com/codeatlas/codeatlas/internal/symbols"
	"github.com/codeatlas/codeatlas/internal/walker"
)

// Phase names reported through the progress callback.
const (
	PhaseExtracting  = "extracting"
	PhaseStructure   = "structure"
	PhaseParsing     = "parsing"
	PhaseCommunities = "communities"
	PhaseProcesses   = "processes"
	PhaseComplete    = "complete"
)

// ProgressFunc receives phase progress. percent is 0..100 within the
// phase; detail is free-form.
type ProgressFunc func(phase string, percent int, detail string)

// FailedFile records a per-file failure; the run continues past it.
type FailedFile struct {
	Path   string
	Reason string
}

// Stats summarises one run.
type Stats struct {
	TotalFileCount  int
	IndexedFiles    int
	DefinitionCount int
	ImportEdges     int
	CallEdges       int
	Communities     int
	Processes       int
	Duration        time.Duration
}

// Result is the finalised graph plus per-phase statistics.
type Result struct {
	Graph       *graph.Graph
	Stats       Stats
	FailedFiles []FailedFile
	// Scores and Membership survive finalisation for consumers that
	// enrich or persist derived data.
	Scores     map[string]float64
	Membership map[string]string
}

// Pipeline is the single driver for one repository ingestion.
type Pipeline struct {
	cfg  *config.Config
	host *parser.Host

	progress ProgressFunc

	mu          sync.Mutex
	failedFiles []FailedFile
}

// New creates a pipeline for the configured repository.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		host: parser.NewHost(cfg.Pipeline.ASTCacheSize),
	}
}

// OnProgress registers the progress callback.
func (p *Pipeline) OnProgress(fn ProgressFunc) { p.progress = fn }

// Host exposes the parser host for single-file re-extraction.
func (p *Pipeline) Host() *parser.Host { return p.host }

// Close releases the parser host and every cached tree. Call after the
// last Run or ReextractFile.
func (p *Pipeline) Close() { p.host.Close() }

func (p *Pipeline) report(phase string, percent int, detail string) {
	if p.progress != nil {
		p.progress(phase, percent, detail)
	}
}

func (p *Pipeline) recordFailure(path, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failedFiles = append(p.failedFiles, FailedFile{Path: path, Reason: reason})
}

// checkpoint observes cancellation at a phase boundary.
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return caerrors.ErrCancelled
	default:
		return nil
	}
}

// Run executes every stage and returns the finalised graph. Individual
// file failures never abort the run; the run fails only when the root is
// unusable or the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	g := graph.New()
	result := &Result{Graph: g}

	// Walk.
	files, err := p.walkPhase(ctx)
	if err != nil {
		return nil, err
	}
	result.Stats.TotalFileCount = len(files)

	// Parallel extraction; results collected by filePath order.
	extracted, contents, err := p.extractPhase(ctx, files)
	if err != nil {
		return nil, err
	}
	result.Stats.IndexedFiles = len(extracted)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Structure.
	p.report(PhaseStructure, 0, "building file hierarchy")
	indexedPaths := make([]string, 0, len(extracted))
	for _, r := range extracted {
		indexedPaths = append(indexedPaths, r.FilePath)
	}
	processors.BuildStructure(g, indexedPaths, contents)
	p.report(PhaseStructure, 100, "")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Symbol table, then resolution.
	p.report(PhaseParsing, 0, "building symbol table")
	table := p.buildSymbols(g, extracted, &result.Stats)

	importMap := p.resolveImports(g, extracted, indexedPaths, &result.Stats)
	p.report(PhaseParsing, 40, "resolving calls")

	var allCalls []extract.CallRecord
	var allHeritage []extract.HeritageRecord
	for _, r := range extracted {
		allCalls = append(allCalls, r.Calls...)
		allHeritage = append(allHeritage, r.Heritage...)
	}
	callStats := processors.ResolveCalls(g, table, importMap, allCalls, func(done, total int) {
		if total > 0 {
			p.report(PhaseParsing, 40+30*done/total, "resolving calls")
		}
	})
	result.Stats.CallEdges = callStats.Resolved
	processors.ResolveHeritage(g, table, allHeritage)
	p.report(PhaseParsing, 85, "scoring entry points")

	result.Scores = p.scoreSymbols(g, extracted)
	p.report(PhaseParsing, 100, "")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Communities.
	p.report(PhaseCommunities, 0, "detecting communities")
	detection := community.Detect(g, result.Scores, func(done, total int) {
		p.report(PhaseCommunities, 50, "refining communities")
	})
	result.Membership = make(map[string]string, len(detection.Memberships))
	for _, c := range detection.Communities {
		g.AddNode(c)
	}
	for _, m := range detection.Memberships {
		result.Membership[m.NodeID] = m.CommunityID
		g.AddRelationship(&graph.Relationship{
			Type:       graph.RelMemberOf,
			SourceID:   m.NodeID,
			TargetID:   m.CommunityID,
			Confidence: 1.0,
		})
	}
	result.Stats.Communities = detection.Stats.Communities
	p.report(PhaseCommunities, 100, "")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Processes.
	traces := flows.Detect(g, result.Scores, result.Membership, flows.Options{
		MaxTraceDepth:      p.cfg.Pipeline.MaxTraceDepth,
		MinSteps:           p.cfg.Pipeline.MinSteps,
		MaxProcesses:       p.cfg.Pipeline.MaxProcesses,
		MinTraceConfidence: p.cfg.Pipeline.MinTraceConfidence,
	}, func(message string, percent int) {
		p.report(PhaseProcesses, percent, message)
	})
	result.Stats.Processes = flows.Materialise(g, traces, result.Membership)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Watch mode keeps the graph live for single-file re-extraction; the
	// caller finalises before the closing persist.
	if !p.cfg.Index.WatchMode {
		g.Finalize()
	}
	result.FailedFiles = p.failedFiles
	result.Stats.Duration = time.Since(started)
	p.report(PhaseComplete, 100, "")
	return result, nil
}

func (p *Pipeline) walkPhase(ctx context.Context) ([]walker.FileRecord, error) {
	w := walker.New(p.cfg)
	files, err := w.Walk(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, caerrors.ErrCancelled
		}
		return nil, caerrors.NewPipelineError(caerrors.KindNotARepository, "walk", err).WithPath(p.cfg.Project.Root)
	}
	return files, nil
}

// extractPhase fans files out to the worker pool. Workers own isolated
// parsers and return value records; the driver sorts results by file
// path before any graph work so downstream phases are deterministic.
func (p *Pipeline) extractPhase(ctx context.Context, files []walker.FileRecord) ([]*extract.FileResult, map[string]string, error) {
	p.report(PhaseExtracting, 0, "extracting symbols")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.WorkerCount())

	var mu sync.Mutex
	var results []*extract.FileResult
	contents := make(map[string]string)
	var done int

	for _, file := range files {
		tag := lang.FromPath(file.RelPath)
		if tag == "" {
			continue // unsupported language, silently dropped
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			content, err := os.ReadFile(file.AbsPath)
			if err != nil {
				p.recordFailure(file.RelPath, "unreadable: "+err.Error())
				return nil
			}
			res := extract.Run(p.host, extract.Task{
				FilePath: file.RelPath,
				Content:  content,
				Language: tag,
			})
			if res.Failed {
				reason := "parse failure"
				if res.Err != nil {
					reason = res.Err.Error()
				}
				p.recordFailure(file.RelPath, reason)
				log.Printf("warning: dropping %s: %s", file.RelPath, reason)
				return nil
			}

			mu.Lock()
			results = append(results, res)
			if p.cfg.Index.IncludeContent {
				contents[file.RelPath] = string(content)
			}
			done++
			if done%50 == 0 && len(files) > 0 {
				p.report(PhaseExtracting, 100*done/len(files), file.RelPath)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, caerrors.ErrCancelled
	}

	sort.Slice(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })
	p.report(PhaseExtracting, 100, "")
	return results, contents, nil
}

// buildSymbols adds symbol nodes with their DEFINES/CONTAINS edges and
// fills the symbol table in file order.
func (p *Pipeline) buildSymbols(g *graph.Graph, extracted []*extract.FileResult, stats *Stats) *symbols.Table {
	table := symbols.NewTable()
	for _, r := range extracted {
		fileID := graph.FileNodeID(r.FilePath)
		for i := range r.Definitions {
			def := &r.Definitions[i]
			nodeID := def.NodeID()
			content := ""
			if p.cfg.Index.IncludeContent {
				content = def.Text
			}
			g.AddNode(&graph.Node{
				ID:    nodeID,
				Label: def.Kind,
				Props: &graph.SymbolProps{
					Name:       def.Name,
					Path:       def.FilePath,
					StartLine:  def.StartLine,
					EndLine:    def.EndLine,
					IsExported: def.IsExported,
					Content:    content,
					Language:   r.Language,
				},
			})
			g.AddRelationship(&graph.Relationship{
				Type:       graph.RelDefines,
				SourceID:   fileID,
				TargetID:   nodeID,
				Confidence: 1.0,
			})
			g.AddRelationship(&graph.Relationship{
				Type:       graph.RelContains,
				SourceID:   fileID,
				TargetID:   nodeID,
				Confidence: 1.0,
			})
			table.Add(def.FilePath, def.Name, nodeID, def.Kind)
			stats.DefinitionCount++
		}
	}
	return table
}

// resolveImports builds the import map and emits IMPORTS edges.
func (p *Pipeline) resolveImports(g *graph.Graph, extracted []*extract.FileResult, indexedPaths []string, stats *Stats) *resolve.ImportMap {
	resolver := resolve.NewResolver(indexedPaths)
	importMap := resolve.NewImportMap()
	for _, r := range extracted {
		for _, imp := range r.Imports {
			target := resolver.Resolve(imp.FilePath, imp.Specifier)
			if target == "" || target == imp.FilePath {
				continue
			}
			importMap.Add(imp.FilePath, target)
			if g.AddRelationship(&graph.Relationship{
				Type:       graph.RelImports,
				SourceID:   graph.FileNodeID(imp.FilePath),
				TargetID:   graph.FileNodeID(target),
				Confidence: 1.0,
			}) {
				stats.ImportEdges++
			}
		}
	}
	return importMap
}

// scoreSymbols computes entry-point scores from the resolved call graph.
func (p *Pipeline) scoreSymbols(g *graph.Graph, extracted []*extract.FileResult) map[string]float64 {
	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	for r := range g.IterRelationships() {
		if r.Type != graph.RelCalls {
			continue
		}
		calleeCount[r.SourceID]++
		callerCount[r.TargetID]++
	}

	astText := make(map[string]string)
	for _, r := range extracted {
		for i := range r.Definitions {
			def := &r.Definitions[i]
			astText[def.NodeID()] = def.Text
		}
	}

	scores := make(map[string]float64)
	for n := range g.IterNodes() {
		if !graph.IsSymbolKind(n.Label) {
			continue
		}
		props, ok := n.Props.(*graph.SymbolProps)
		if !ok {
			continue
		}
		score := entrypoint.ScoreSymbol(entrypoint.Input{
			Name:        props.Name,
			Language:    props.Language,
			FilePath:    props.Path,
			ASTText:     astText[n.ID],
			IsExported:  props.IsExported,
			CallerCount: callerCount[n.ID],
			CalleeCount: calleeCount[n.ID],
		})
		scores[n.ID] = score.Value
	}
	return scores
}

// ReextractFile re-runs extraction for a single file during ingestion:
// previous nodes for the path are removed with their incident edges,
// then fresh definitions are indexed. Used by watch-triggered refresh.
func (p *Pipeline) ReextractFile(ctx context.Context, g *graph.Graph, relPath string) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}
	if g.Finalized() {
		return caerrors.ErrReadOnly
	}
	tag := lang.FromPath(relPath)
	if tag == "" {
		return caerrors.NewPipelineError(caerrors.KindUnsupportedLanguage, "reextract", nil).WithPath(relPath)
	}
	absPath := filepath.Join(p.cfg.Project.Root, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return caerrors.NewPipelineError(caerrors.KindParseFailure, "reextract", err).WithPath(relPath)
	}

	p.host.Invalidate(relPath)
	g.RemoveNodesByFile(relPath)

	res := extract.Run(p.host, extract.Task{FilePath: relPath, Content: content, Language: tag})
	if res.Failed {
		return caerrors.NewParseError(relPath, tag, res.Err)
	}

	contents := map[string]string{}
	if p.cfg.Index.IncludeContent {
		contents[relPath] = string(content)
	}
	processors.BuildStructure(g, []string{relPath}, contents)
	var stats Stats
	p.buildSymbols(g, []*extract.FileResult{res}, &stats)
	return nil
}
