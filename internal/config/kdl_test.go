package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDL_Overrides(t *testing.T) {
	content := `
project {
    name "demo"
}
index {
    max_file_size 1048576
    respect_gitignore false
    exclude "**/fixtures/**" "**/snapshots/**"
}
pipeline {
    workers 2
    ast_cache_size 10
    max_trace_depth 5
    min_steps 2
    max_processes 20
    min_trace_confidence 0.7
}
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, int64(1048576), cfg.Index.MaxFileSize)
	assert.False(t, cfg.Index.RespectGitignore)
	assert.Equal(t, []string{"**/fixtures/**", "**/snapshots/**"}, cfg.Index.ExtraExclude)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 10, cfg.Pipeline.ASTCacheSize)
	assert.Equal(t, 5, cfg.Pipeline.MaxTraceDepth)
	assert.Equal(t, 2, cfg.Pipeline.MinSteps)
	assert.Equal(t, 20, cfg.Pipeline.MaxProcesses)
	assert.InDelta(t, 0.7, cfg.Pipeline.MinTraceConfidence, 1e-9)
}

func TestParseKDL_DefaultsSurviveEmptyConfig(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Pipeline.ASTCacheSize)
	assert.Equal(t, 8, cfg.Pipeline.MaxTraceDepth)
	assert.Equal(t, 3, cfg.Pipeline.MinSteps)
	assert.InDelta(t, 0.5, cfg.Pipeline.MinTraceConfidence, 1e-9)
}

func TestLoadKDL_MissingFile(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg, "absent config file means defaults")
}

func TestLoad_ReadsProjectConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, ConfigFileName),
		[]byte("pipeline {\n    max_processes 7\n}\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.MaxProcesses)
	assert.Equal(t, filepath.Base(root), cfg.Project.Name)
}

func TestDefaultKDL_RoundTrips(t *testing.T) {
	cfg, err := parseKDL(DefaultKDL("sample"))
	require.NoError(t, err)
	assert.Equal(t, "sample", cfg.Project.Name)
	assert.Equal(t, 50, cfg.Pipeline.MaxProcesses)
}
