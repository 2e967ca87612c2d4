package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	caerrors "github.com/codeatlas/codeatlas/internal/errors"
	"github.com/codeatlas/codeatlas/internal/graph"
)

const graphSchema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL DEFAULT -1,
    end_line INTEGER NOT NULL DEFAULT -1,
    is_exported INTEGER NOT NULL DEFAULT 0,
    content TEXT NOT NULL DEFAULT '',
    extra TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 1.0,
    reason TEXT NOT NULL DEFAULT '',
    step INTEGER NOT NULL DEFAULT -1
);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, type);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, type);
`

// StoredNode is a node row loaded from the embedded store.
type StoredNode struct {
	ID         string
	Label      string
	Name       string
	FilePath   string
	StartLine  int
	EndLine    int
	IsExported bool
	Content    string
	Extra      map[string]any
}

// StoredEdge is an edge row loaded from the embedded store.
type StoredEdge struct {
	ID         string
	Type       string
	SourceID   string
	TargetID   string
	Confidence float64
	Reason     string
	Step       int
}

// GraphStore is the embedded graph database. It is written exactly once
// at the end of ingestion and opened read-only at query time.
type GraphStore struct {
	db       *sql.DB
	path     string
	readOnly bool
	timeout  time.Duration
}

// CreateGraphStore writes the finalised graph into a fresh database.
func CreateGraphStore(path string, g *graph.Graph) error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=normal", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "open", err)
	}
	defer db.Close()
	if _, err := db.Exec(graphSchema); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "migrate", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "begin", err)
	}
	defer tx.Rollback()

	nodeStmt, err := tx.Prepare(`INSERT OR IGNORE INTO nodes
        (id, label, name, file_path, start_line, end_line, is_exported, content, extra)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "prepare", err)
	}
	defer nodeStmt.Close()

	for n := range g.IterNodes() {
		row := nodeRow(n)
		if _, err := nodeStmt.Exec(row.ID, row.Label, row.Name, row.FilePath,
			row.StartLine, row.EndLine, row.IsExported, row.Content, encodeExtra(row.Extra)); err != nil {
			return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "insert node", err)
		}
	}

	edgeStmt, err := tx.Prepare(`INSERT OR IGNORE INTO edges
        (id, type, source_id, target_id, confidence, reason, step)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "prepare", err)
	}
	defer edgeStmt.Close()

	for r := range g.IterRelationships() {
		step := r.Step
		if step == 0 {
			step = -1
		}
		if _, err := edgeStmt.Exec(r.ID, string(r.Type), r.SourceID, r.TargetID, r.Confidence, r.Reason, step); err != nil {
			return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "insert edge", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "commit", err)
	}
	return nil
}

func nodeRow(n *graph.Node) StoredNode {
	row := StoredNode{ID: n.ID, Label: string(n.Label), StartLine: -1, EndLine: -1}
	switch props := n.Props.(type) {
	case *graph.FileProps:
		row.Name = props.Name
		row.FilePath = props.Path
		row.Content = sanitizeText(props.Content)
	case *graph.FolderProps:
		row.Name = props.Name
		row.FilePath = props.Path
	case *graph.SymbolProps:
		row.Name = props.Name
		row.FilePath = props.Path
		if props.StartLine > 0 {
			row.StartLine = props.StartLine
		}
		if props.EndLine > 0 {
			row.EndLine = props.EndLine
		}
		row.IsExported = props.IsExported
		row.Content = sanitizeText(props.Content)
		row.Extra = map[string]any{"language": props.Language}
	case *graph.CommunityProps:
		row.Name = props.Name
		row.Extra = map[string]any{
			"heuristicLabel": props.HeuristicLabel,
			"keywords":       props.Keywords,
			"cohesion":       props.Cohesion,
			"symbolCount":    props.SymbolCount,
			"color":          props.Color,
			"description":    props.Description,
			"enrichedBy":     props.EnrichedBy,
		}
	case *graph.ProcessProps:
		row.Name = props.HeuristicLabel
		row.Extra = map[string]any{
			"processType":  props.ProcessType,
			"stepCount":    props.StepCount,
			"communities":  props.Communities,
			"entryPointId": props.EntryPointID,
			"terminalId":   props.TerminalID,
			"trace":        props.Trace,
		}
	}
	return row
}

func encodeExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return "{}"
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// OpenGraphStore opens an existing database read-only.
func OpenGraphStore(path string, queryTimeout time.Duration) (*GraphStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, caerrors.NewStorageError(caerrors.KindStorageUnavailable, "open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, caerrors.ErrNoIndex
	}
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &GraphStore{db: db, path: path, readOnly: true, timeout: queryTimeout}, nil
}

// Close releases the database handle.
func (s *GraphStore) Close() error { return s.db.Close() }

func (s *GraphStore) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// NodeByID loads one node.
func (s *GraphStore) NodeByID(ctx context.Context, id string) (*StoredNode, error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	row := s.db.QueryRowContext(qctx,
		`SELECT id, label, name, file_path, start_line, end_line, is_exported, content, extra
         FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

// NodesByName loads nodes matching a name exactly.
func (s *GraphStore) NodesByName(ctx context.Context, name string) ([]*StoredNode, error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(qctx,
		`SELECT id, label, name, file_path, start_line, end_line, is_exported, content, extra
         FROM nodes WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// NodesByLabel loads every node with a label, ordered by id.
func (s *GraphStore) NodesByLabel(ctx context.Context, label string) ([]*StoredNode, error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(qctx,
		`SELECT id, label, name, file_path, start_line, end_line, is_exported, content, extra
         FROM nodes WHERE label = ? ORDER BY id`, label)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllSymbolNames returns distinct symbol names for fuzzy lookup.
func (s *GraphStore) AllSymbolNames(ctx context.Context) ([]string, error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(qctx,
		`SELECT DISTINCT name FROM nodes
         WHERE label NOT IN ('File','Folder','Community','Process') AND name != ''
         ORDER BY name`)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EdgesFrom loads outgoing edges of a node, optionally filtered by type.
func (s *GraphStore) EdgesFrom(ctx context.Context, id, edgeType string) ([]*StoredEdge, error) {
	return s.edges(ctx, "source_id", id, edgeType)
}

// EdgesTo loads incoming edges of a node, optionally filtered by type.
func (s *GraphStore) EdgesTo(ctx context.Context, id, edgeType string) ([]*StoredEdge, error) {
	return s.edges(ctx, "target_id", id, edgeType)
}

func (s *GraphStore) edges(ctx context.Context, column, id, edgeType string) ([]*StoredEdge, error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	query := `SELECT id, type, source_id, target_id, confidence, reason, step FROM edges WHERE ` + column + ` = ?`
	args := []any{id}
	if edgeType != "" {
		query += ` AND type = ?`
		args = append(args, edgeType)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	var edges []*StoredEdge
	for rows.Next() {
		var e StoredEdge
		if err := rows.Scan(&e.ID, &e.Type, &e.SourceID, &e.TargetID, &e.Confidence, &e.Reason, &e.Step); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// Counts returns node and edge totals.
func (s *GraphStore) Counts(ctx context.Context) (nodes, edges int, err error) {
	qctx, cancel := s.queryContext(ctx)
	defer cancel()
	if err = s.db.QueryRowContext(qctx, `SELECT COUNT(*) FROM nodes`).Scan(&nodes); err != nil {
		return 0, 0, wrapQueryErr(err)
	}
	if err = s.db.QueryRowContext(qctx, `SELECT COUNT(*) FROM edges`).Scan(&edges); err != nil {
		return 0, 0, wrapQueryErr(err)
	}
	return nodes, edges, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*StoredNode, error) {
	var n StoredNode
	var exported int
	var extra string
	err := row.Scan(&n.ID, &n.Label, &n.Name, &n.FilePath, &n.StartLine, &n.EndLine, &exported, &n.Content, &extra)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	n.IsExported = exported != 0
	if extra != "" && extra != "{}" {
		_ = json.Unmarshal([]byte(extra), &n.Extra)
	}
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*StoredNode, error) {
	var nodes []*StoredNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, rows.Err()
}

func wrapQueryErr(err error) error {
	if err == context.DeadlineExceeded {
		return caerrors.NewStorageError(caerrors.KindTimeout, "query", err)
	}
	return caerrors.NewStorageError(caerrors.KindStorageUnavailable, "query", err)
}
