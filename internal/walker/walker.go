// Package walker enumerates indexable source files under a repository
// root, honouring the fixed ignore policy plus the repository's
// .gitignore.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/config"
)

// FileRecord describes one file found by the walk.
type FileRecord struct {
	RelPath string // repo-relative, forward slashes
	AbsPath string
	Size    int64
}

// Walker walks a repository root.
type Walker struct {
	cfg    *config.Config
	policy *config.IgnorePolicy
}

// New creates a walker for the configured project root.
func New(cfg *config.Config) *Walker {
	return &Walker{cfg: cfg, policy: config.NewIgnorePolicy(cfg)}
}

// Walk enumerates files under root. Results are sorted by relative path
// ascending so every downstream phase sees a deterministic order.
// Unreadable entries are skipped, not fatal.
func (w *Walker) Walk(ctx context.Context) ([]FileRecord, error) {
	root := w.cfg.Project.Root
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, err
	}

	var records []FileRecord
	visitedDirs := make(map[string]bool) // real paths, guards symlink cycles

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil // continue despite unreadable entries
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path == root {
				return nil
			}
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return filepath.SkipDir
			}
			if visitedDirs[realPath] {
				return filepath.SkipDir
			}
			visitedDirs[realPath] = true

			if w.policy.ShouldIgnoreDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if w.policy.ShouldIgnoreFile(rel) {
			return nil
		}
		if w.cfg.Index.MaxFileSize > 0 && info.Size() > w.cfg.Index.MaxFileSize {
			return nil
		}
		records = append(records, FileRecord{RelPath: rel, AbsPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].RelPath < records[j].RelPath })
	return records, nil
}

// IsTestFile reports whether a path looks like test code. Test files are
// excluded from entry-point selection, backslash-normalised and matched
// case-insensitively.
func IsTestFile(path string) bool {
	p := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, marker := range []string{
		".test.", ".spec.", "__tests__", "__mocks__",
		"/test/", "/tests/", "/testing/",
		"_test.go", "_test.py", "tests.swift", ".tests/",
		"tests/feature/", "tests/unit/",
	} {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}
