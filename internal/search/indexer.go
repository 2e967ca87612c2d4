// Package search defines the pluggable symbol indexer boundary and its
// bleve-backed implementation. Indexers observe the pipeline; they never
// feed back into the graph.
package search

import (
	"context"

	"github.com/blevesearch/bleve/v2"

	"github.com/codeatlas/codeatlas/internal/graph"
)

// Indexer is the plug point for full-text indexing of symbols.
type Indexer interface {
	IndexSymbol(ctx context.Context, node *graph.Node) error
	Flush() error
	Close() error
}

// symbolDoc is the indexed document shape.
type symbolDoc struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// BleveIndexer indexes symbol names, kinds, paths and text with BM25
// ranking.
type BleveIndexer struct {
	index bleve.Index
	batch *bleve.Batch
}

// batchSize bounds how many documents accumulate before a flush.
const batchSize = 512

// NewBleveIndexer creates or opens the index at path.
func NewBleveIndexer(path string) (*BleveIndexer, error) {
	index, err := bleve.Open(path)
	if err != nil {
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(path, mapping)
		if err != nil {
			return nil, err
		}
	}
	return &BleveIndexer{index: index, batch: index.NewBatch()}, nil
}

// IndexSymbol adds one symbol node to the pending batch.
func (b *BleveIndexer) IndexSymbol(ctx context.Context, node *graph.Node) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	props, ok := node.Props.(*graph.SymbolProps)
	if !ok {
		return nil
	}
	doc := symbolDoc{
		Name:     props.Name,
		Kind:     string(node.Label),
		FilePath: props.Path,
		Content:  props.Content,
	}
	if err := b.batch.Index(node.ID, doc); err != nil {
		return err
	}
	if b.batch.Size() >= batchSize {
		return b.Flush()
	}
	return nil
}

// Flush commits the pending batch.
func (b *BleveIndexer) Flush() error {
	if b.batch.Size() == 0 {
		return nil
	}
	if err := b.index.Batch(b.batch); err != nil {
		return err
	}
	b.batch = b.index.NewBatch()
	return nil
}

// Search runs a match query and returns node ids ranked by score.
func (b *BleveIndexer) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close flushes and releases the index.
func (b *BleveIndexer) Close() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return b.index.Close()
}

// IndexGraph feeds every symbol node of a finalised graph through an
// indexer.
func IndexGraph(ctx context.Context, indexer Indexer, g *graph.Graph) error {
	for n := range g.IterNodes() {
		if !graph.IsSymbolKind(n.Label) {
			continue
		}
		if err := indexer.IndexSymbol(ctx, n); err != nil {
			return err
		}
	}
	return indexer.Flush()
}
