package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config is the full runtime configuration. Values come from defaults,
// then the project's .codeatlas.kdl, then CLI flag overrides.
type Config struct {
	Version  int
	Project  Project
	Index    Index
	Pipeline Pipeline
	Storage  Storage
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize      int64    // files larger than this are skipped
	RespectGitignore bool     // honour the repository's .gitignore on top of the fixed policy
	ExtraExclude     []string // additional doublestar glob patterns
	IncludeContent   bool     // carry file/symbol text into the graph
	WatchMode        bool     // keep the graph live for single-file re-extraction
}

type Pipeline struct {
	Workers            int     // extraction worker pool size; 0 = NumCPU
	ASTCacheSize       int     // bounded LRU of parsed trees
	MaxTraceDepth      int     // process traversal depth cap
	MinSteps           int     // minimum accepted trace length
	MaxProcesses       int     // overall process cap
	MinTraceConfidence float64 // CALLS edges below this are not traversed
	ProgressEvery      int     // cooperative yield interval in hot loops
}

type Storage struct {
	Dir             string // index root; one subdirectory per repository
	QueryTimeoutSec int
	ResourceWaitSec int
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Version: 1,
		Index: Index{
			MaxFileSize:      10 * 1024 * 1024,
			RespectGitignore: true,
			IncludeContent:   true,
		},
		Pipeline: Pipeline{
			Workers:            runtime.NumCPU(),
			ASTCacheSize:       50,
			MaxTraceDepth:      8,
			MinSteps:           3,
			MaxProcesses:       50,
			MinTraceConfidence: 0.5,
			ProgressEvery:      200,
		},
		Storage: Storage{
			Dir:             filepath.Join(home, ".codeatlas"),
			QueryTimeoutSec: 30,
			ResourceWaitSec: 15,
		},
	}
}

// Load reads configuration for a project root: defaults overlaid with
// .codeatlas.kdl when present.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		absRoot = projectRoot
	}
	cfg.Project.Root = absRoot
	cfg.Project.Name = filepath.Base(absRoot)

	fromKDL, err := LoadKDL(absRoot)
	if err != nil {
		return nil, err
	}
	if fromKDL != nil {
		cfg = fromKDL
		cfg.Project.Root = absRoot
		if cfg.Project.Name == "" {
			cfg.Project.Name = filepath.Base(absRoot)
		}
	}
	return cfg, nil
}

// WorkerCount resolves the effective extraction pool size.
func (c *Config) WorkerCount() int {
	if c.Pipeline.Workers > 0 {
		return c.Pipeline.Workers
	}
	return runtime.NumCPU()
}
