package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/lang"
)

// watchDebounce coalesces editor write bursts into one re-extraction.
const watchDebounce = 300 * time.Millisecond

// Watcher triggers single-file re-extraction while `analyze --watch`
// keeps an unfinalised in-memory graph warm.
type Watcher struct {
	cfg      *config.Config
	pipeline *Pipeline
	graph    *graph.Graph
	policy   *config.IgnorePolicy

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher bound to a pipeline and its graph.
func NewWatcher(cfg *config.Config, p *Pipeline, g *graph.Graph) *Watcher {
	return &Watcher{
		cfg:      cfg,
		pipeline: p,
		graph:    g,
		policy:   config.NewIgnorePolicy(cfg),
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches the repository tree until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	root := w.cfg.Project.Root
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && w.policy.ShouldIgnoreDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("warning: watcher error: %v", err)
		}
	}
}

// schedule debounces one file's re-extraction.
func (w *Watcher) schedule(ctx context.Context, absPath string) {
	rel, err := filepath.Rel(w.cfg.Project.Root, absPath)
	if err != nil {
		return
	}
	relPath := filepath.ToSlash(rel)
	if lang.FromPath(relPath) == "" || w.policy.ShouldIgnoreFile(relPath) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[relPath]; ok {
		timer.Stop()
	}
	w.pending[relPath] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, relPath)
		w.mu.Unlock()
		if err := w.pipeline.ReextractFile(ctx, w.graph, relPath); err != nil {
			log.Printf("warning: re-extraction of %s failed: %v", relPath, err)
		}
	})
}
