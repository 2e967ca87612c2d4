package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/codeatlas/codeatlas/internal/config"
	caerrors "github.com/codeatlas/codeatlas/internal/errors"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/mcpserver"
	"github.com/codeatlas/codeatlas/internal/pipeline"
	"github.com/codeatlas/codeatlas/internal/search"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/version"
	"github.com/codeatlas/codeatlas/internal/wiki"
)

func main() {
	app := &cli.App{
		Name:                   "codeatlas",
		Usage:                  "Code knowledge graphs for AI assistants",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Repository root (defaults to the working directory)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Extra exclude glob patterns (e.g. --exclude '**/generated/**')",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Aliases:   []string{"a"},
				Usage:     "Ingest a repository and persist its knowledge graph",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "search-index", Usage: "Also build the full-text symbol index"},
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Stay running and re-extract files as they change"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress progress output"},
				},
				Action: runAnalyze,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the persisted graph over the Model Context Protocol (stdio)",
				Action: runMCP,
			},
			{
				Name:   "setup",
				Usage:  "Write a default .codeatlas.kdl and prepare the index directory",
				Action: runSetup,
			},
			{
				Name:   "wiki",
				Usage:  "Render a Markdown overview of the persisted graph",
				Action: runWiki,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to the CLI contract: 1 for user-recoverable
// conditions, 2 for unexpected failures.
func exitCode(err error) int {
	var pe *caerrors.PipelineError
	if errors.As(err, &pe) && pe.UserRecoverable() {
		fmt.Fprintln(os.Stderr, "codeatlas:", hintOrError(pe))
		return 1
	}
	fmt.Fprintln(os.Stderr, "codeatlas:", err)
	return 2
}

func hintOrError(pe *caerrors.PipelineError) string {
	if pe.Hint != "" {
		return pe.Hint
	}
	return pe.Error()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" && c.Args().Len() > 0 {
		root = c.Args().First()
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = cwd
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, caerrors.ErrNotARepository
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if extra := c.StringSlice("exclude"); len(extra) > 0 {
		cfg.Index.ExtraExclude = append(cfg.Index.ExtraExclude, extra...)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAnalyze(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	p := pipeline.New(cfg)
	defer p.Close()
	if !c.Bool("quiet") {
		p.OnProgress(func(phase string, percent int, detail string) {
			if detail != "" {
				fmt.Printf("\r%-12s %3d%%  %s\x1b[K", phase, percent, detail)
			} else {
				fmt.Printf("\r%-12s %3d%%\x1b[K", phase, percent)
			}
			if phase == pipeline.PhaseComplete {
				fmt.Println()
			}
		})
	}

	cfg.Index.WatchMode = c.Bool("watch")

	result, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if result.Stats.IndexedFiles == 0 && result.Stats.TotalFileCount > 0 {
		return caerrors.NewPipelineError(caerrors.KindInternal, "analyze",
			fmt.Errorf("no file could be indexed (%d failures)", len(result.FailedFiles)))
	}

	dir := storage.NewDir(cfg.Storage.Dir, cfg.Project.Name)
	if err := persist(ctx, dir, result, c.Bool("search-index")); err != nil {
		return err
	}

	fmt.Printf("indexed %d files: %d nodes, %d relationships, %d communities, %d processes (%.1fs)\n",
		result.Stats.IndexedFiles,
		result.Graph.NodeCount(), result.Graph.RelationshipCount(),
		result.Stats.Communities, result.Stats.Processes,
		result.Stats.Duration.Seconds())
	for _, failed := range result.FailedFiles {
		fmt.Printf("  skipped %s: %s\n", failed.Path, failed.Reason)
	}

	if cfg.Index.WatchMode {
		fmt.Println("watching for changes, interrupt to finish")
		watcher := pipeline.NewWatcher(cfg, p, result.Graph)
		if err := watcher.Run(ctx); err != nil {
			return err
		}
		// Final snapshot: freeze the live graph and persist it.
		result.Graph.Finalize()
		if err := persist(context.Background(), dir, result, c.Bool("search-index")); err != nil {
			return err
		}
	}
	return nil
}

// persist writes the tabular files, the embedded database and the
// metadata under the repository's index directory.
func persist(ctx context.Context, dir *storage.Dir, result *pipeline.Result, searchIndex bool) error {
	if err := dir.Lock(); err != nil {
		return err
	}
	defer dir.Unlock()

	writer, err := storage.NewTabularWriter(dir)
	if err != nil {
		return err
	}
	if err := storage.WriteGraph(writer, result.Graph); err != nil {
		return err
	}
	writer.Close()

	os.Remove(dir.DatabasePath())
	if err := storage.CreateGraphStore(dir.DatabasePath(), result.Graph); err != nil {
		return err
	}

	meta := &storage.Metadata{
		Repository:        filepath.Base(dir.Root),
		NodeCount:         result.Graph.NodeCount(),
		RelationshipCount: result.Graph.RelationshipCount(),
		CreatedAt:         time.Now().UTC(),
	}
	contents := make(map[string]string)
	for n := range result.Graph.IterNodes() {
		if props, ok := n.Props.(*graph.FileProps); ok {
			contents[props.Path] = props.Content
		}
	}
	if err := dir.WriteMetadata(meta, contents); err != nil {
		return err
	}

	if searchIndex {
		if err := os.MkdirAll(dir.SearchDir(), 0o755); err != nil {
			return err
		}
		indexer, err := search.NewBleveIndexer(filepath.Join(dir.SearchDir(), "symbols.bleve"))
		if err != nil {
			return err
		}
		defer indexer.Close()
		if err := search.IndexGraph(ctx, indexer, result.Graph); err != nil {
			return err
		}
	}
	return nil
}

func openStore(c *cli.Context) (*storage.GraphStore, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	dir := storage.NewDir(cfg.Storage.Dir, cfg.Project.Name)
	if !dir.Exists() {
		return nil, nil, caerrors.ErrNoIndex
	}
	if err := dir.CheckFresh(cfg.Project.Root); err != nil {
		return nil, nil, err
	}
	store, err := storage.OpenGraphStore(dir.DatabasePath(),
		time.Duration(cfg.Storage.QueryTimeoutSec)*time.Second)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runMCP(c *cli.Context) error {
	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()
	return mcpserver.New(store).Run(ctx)
}

func runSetup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	configPath := filepath.Join(cfg.Project.Root, config.ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(config.DefaultKDL(cfg.Project.Name)), 0o644); err != nil {
			return err
		}
		fmt.Println("wrote", configPath)
	} else {
		fmt.Println(configPath, "already exists")
	}

	dir := storage.NewDir(cfg.Storage.Dir, cfg.Project.Name)
	if err := os.MkdirAll(dir.GraphDir(), 0o755); err != nil {
		return err
	}
	fmt.Println("index directory:", dir.Root)
	return nil
}

func runWiki(c *cli.Context) error {
	store, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	page, err := wiki.New(store, cfg.Project.Name, nil).Render(ctx)
	if err != nil {
		return err
	}
	fmt.Print(page)
	return nil
}
