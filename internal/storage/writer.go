// Package storage persists the finalised graph: one directory per
// repository holding the tabular graph files, an embedded read-only
// database, a metadata file and optional indexer subdirectories.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	caerrors "github.com/codeatlas/codeatlas/internal/errors"
	"github.com/codeatlas/codeatlas/internal/graph"
)

// Writer is the narrow boundary the pipeline hands its finalised graph
// to. Implementations serialise each node label to its own tabular file.
type Writer interface {
	WriteNodes(label graph.NodeKind, nodes []*graph.Node) error
	WriteRelationships(rels []*graph.Relationship) error
	CreateIndex(kind string, params map[string]string) error
}

// Lock retry policy: 3 attempts with linear backoff (2s x attempt).
const lockAttempts = 3

var lockBackoff = 2 * time.Second

// Metadata describes a persisted index.
type Metadata struct {
	Repository        string            `json:"repository"`
	CommitSHA         string            `json:"commitSha,omitempty"`
	NodeCount         int               `json:"nodeCount"`
	RelationshipCount int               `json:"relationshipCount"`
	CreatedAt         time.Time         `json:"createdAt"`
	FileDigests       map[string]string `json:"fileDigests,omitempty"`
}

// Dir is the per-repository persistence layout.
type Dir struct {
	Root string // <index-root>/<repo-name>
}

// NewDir resolves the directory for a repository name under the index
// root.
func NewDir(indexRoot, repoName string) *Dir {
	return &Dir{Root: filepath.Join(indexRoot, repoName)}
}

func (d *Dir) GraphDir() string    { return filepath.Join(d.Root, "graph") }
func (d *Dir) DatabasePath() string { return filepath.Join(d.Root, "graph", "atlas.db") }
func (d *Dir) MetadataPath() string { return filepath.Join(d.Root, "metadata.json") }
func (d *Dir) SearchDir() string   { return filepath.Join(d.Root, "search") }
func (d *Dir) lockPath() string    { return filepath.Join(d.Root, ".lock") }

// Exists reports whether an index has been written here.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.MetadataPath())
	return err == nil
}

// Lock acquires the directory lock, retrying on contention.
func (d *Dir) Lock() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "lock", err)
	}
	var lastErr error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		f, err := os.OpenFile(d.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		lastErr = err
		time.Sleep(lockBackoff * time.Duration(attempt))
	}
	serr := caerrors.NewStorageError(caerrors.KindStorageLocked, "lock", lastErr)
	serr.Attempts = lockAttempts
	return serr
}

// Unlock releases the directory lock.
func (d *Dir) Unlock() { os.Remove(d.lockPath()) }

// ReadMetadata loads the metadata file; a missing file maps to NoIndex.
func (d *Dir) ReadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(d.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, caerrors.ErrNoIndex
		}
		return nil, caerrors.NewStorageError(caerrors.KindStorageUnavailable, "read metadata", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, caerrors.NewStorageError(caerrors.KindStorageUnavailable, "decode metadata", err)
	}
	return &meta, nil
}

// WriteMetadata persists run metadata, digesting files with xxhash for
// the staleness check.
func (d *Dir) WriteMetadata(meta *Metadata, fileContents map[string]string) error {
	if meta.FileDigests == nil && fileContents != nil {
		meta.FileDigests = make(map[string]string, len(fileContents))
		for path, content := range fileContents {
			if content == "" {
				continue // content not carried; no digest to record
			}
			meta.FileDigests[path] = strconv.FormatUint(xxhash.Sum64String(content), 16)
		}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "encode metadata", err)
	}
	if err := os.WriteFile(d.MetadataPath(), data, 0o644); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "write metadata", err)
	}
	return nil
}

// CheckFresh compares the persisted file digests against the working
// tree. A missing or changed file maps to StaleIndex; an index without
// digests is accepted as-is.
func (d *Dir) CheckFresh(projectRoot string) error {
	meta, err := d.ReadMetadata()
	if err != nil {
		return err
	}
	for relPath, digest := range meta.FileDigests {
		content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(relPath)))
		if err != nil {
			return caerrors.ErrStaleIndex
		}
		if strconv.FormatUint(xxhash.Sum64(content), 16) != digest {
			return caerrors.ErrStaleIndex
		}
	}
	return nil
}

// TabularWriter serialises graph entities into per-label CSV files under
// the graph directory. After Close every write is rejected: the
// persisted form is read-only.
type TabularWriter struct {
	dir    *Dir
	closed bool
}

// NewTabularWriter prepares the graph directory.
func NewTabularWriter(dir *Dir) (*TabularWriter, error) {
	if err := os.MkdirAll(dir.GraphDir(), 0o755); err != nil {
		return nil, caerrors.NewStorageError(caerrors.KindStorageUnavailable, "mkdir", err)
	}
	return &TabularWriter{dir: dir}, nil
}

// WriteNodes serialises one label's nodes with that label's fixed field
// order. Absent numerics become -1, booleans false, strings empty.
func (w *TabularWriter) WriteNodes(label graph.NodeKind, nodes []*graph.Node) error {
	if w.closed {
		return caerrors.ErrReadOnly
	}
	var b strings.Builder
	b.WriteString(strings.Join(headerFor(label), ",") + "\n")
	for _, n := range nodes {
		if n.Label != label {
			continue
		}
		b.WriteString(strings.Join(rowFor(n), ",") + "\n")
	}
	path := filepath.Join(w.dir.GraphDir(), "node_"+string(label)+".csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "write nodes", err)
	}
	return nil
}

// WriteRelationships serialises every edge into relationships.csv.
func (w *TabularWriter) WriteRelationships(rels []*graph.Relationship) error {
	if w.closed {
		return caerrors.ErrReadOnly
	}
	var b strings.Builder
	b.WriteString("id,type,sourceId,targetId,confidence,reason,step\n")
	for _, r := range rels {
		step := strconv.Itoa(r.Step)
		if r.Step == 0 {
			step = "-1"
		}
		b.WriteString(strings.Join([]string{
			quoteField(r.ID),
			quoteField(string(r.Type)),
			quoteField(r.SourceID),
			quoteField(r.TargetID),
			formatFloat(r.Confidence),
			quoteField(r.Reason),
			step,
		}, ",") + "\n")
	}
	path := filepath.Join(w.dir.GraphDir(), "relationships.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "write relationships", err)
	}
	return nil
}

// CreateIndex records an index request in the layout. The tabular store
// itself is scanned sequentially; the call exists for storage engines
// that support real indexes.
func (w *TabularWriter) CreateIndex(kind string, params map[string]string) error {
	if w.closed {
		return caerrors.ErrReadOnly
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(kind)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + params[k])
	}
	b.WriteString("\n")
	path := filepath.Join(w.dir.GraphDir(), "indexes.txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "create index", err)
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// Close seals the writer; the persisted graph is read-only from here on.
func (w *TabularWriter) Close() { w.closed = true }

// WriteGraph persists a finalised graph through a Writer, grouping nodes
// by label in insertion order.
func WriteGraph(w Writer, g *graph.Graph) error {
	byLabel := make(map[graph.NodeKind][]*graph.Node)
	var labelOrder []graph.NodeKind
	for n := range g.IterNodes() {
		if _, ok := byLabel[n.Label]; !ok {
			labelOrder = append(labelOrder, n.Label)
		}
		byLabel[n.Label] = append(byLabel[n.Label], n)
	}
	for _, label := range labelOrder {
		if err := w.WriteNodes(label, byLabel[label]); err != nil {
			return err
		}
	}
	if err := w.WriteRelationships(g.Relationships()); err != nil {
		return err
	}
	return w.CreateIndex("node_id", map[string]string{"field": "id"})
}

// headerFor returns the fixed field order for a label.
func headerFor(label graph.NodeKind) []string {
	switch label {
	case graph.KindFile:
		return []string{"id", "name", "filePath", "content"}
	case graph.KindFolder:
		return []string{"id", "name", "filePath"}
	case graph.KindCommunity:
		return []string{"id", "name", "heuristicLabel", "keywords", "description", "enrichedBy", "cohesion", "symbolCount", "color"}
	case graph.KindProcess:
		return []string{"id", "heuristicLabel", "processType", "stepCount", "communities", "entryPointId", "terminalId", "trace"}
	default:
		return []string{"id", "name", "filePath", "startLine", "endLine", "isExported", "content", "description"}
	}
}

func rowFor(n *graph.Node) []string {
	switch props := n.Props.(type) {
	case *graph.FileProps:
		return []string{quoteField(n.ID), quoteField(props.Name), quoteField(props.Path), quoteField(props.Content)}
	case *graph.FolderProps:
		return []string{quoteField(n.ID), quoteField(props.Name), quoteField(props.Path)}
	case *graph.CommunityProps:
		return []string{
			quoteField(n.ID),
			quoteField(props.Name),
			quoteField(props.HeuristicLabel),
			quoteField(encodeArray(props.Keywords)),
			quoteField(props.Description),
			quoteField(props.EnrichedBy),
			formatFloat(props.Cohesion),
			strconv.Itoa(props.SymbolCount),
			quoteField(props.Color),
		}
	case *graph.ProcessProps:
		return []string{
			quoteField(n.ID),
			quoteField(props.HeuristicLabel),
			quoteField(props.ProcessType),
			strconv.Itoa(props.StepCount),
			quoteField(encodeArray(props.Communities)),
			quoteField(props.EntryPointID),
			quoteField(props.TerminalID),
			quoteField(encodeArray(props.Trace)),
		}
	case *graph.SymbolProps:
		startLine := strconv.Itoa(props.StartLine)
		if props.StartLine == 0 {
			startLine = "-1"
		}
		endLine := strconv.Itoa(props.EndLine)
		if props.EndLine == 0 {
			endLine = "-1"
		}
		return []string{
			quoteField(n.ID),
			quoteField(props.Name),
			quoteField(props.Path),
			startLine,
			endLine,
			strconv.FormatBool(props.IsExported),
			quoteField(props.Content),
			quoteField(props.Description),
		}
	default:
		return []string{quoteField(n.ID)}
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
