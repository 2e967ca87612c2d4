package config

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are path segments that prune the walk entirely.
var skipDirs = map[string]bool{
	// Version control and IDE state
	".git": true, ".svn": true, ".hg": true, ".bzr": true,
	".idea": true, ".vscode": true, ".vs": true,
	// Dependency and cache directories
	"node_modules": true, "vendor": true, "venv": true, ".venv": true,
	"__pycache__": true, "site-packages": true, ".mypy_cache": true, ".pytest_cache": true,
	// Build outputs
	"dist": true, "build": true, "out": true, "output": true, "bin": true,
	"obj": true, "target": true, ".next": true, ".nuxt": true, ".vercel": true,
	".parcel-cache": true, ".turbo": true,
	// Test artefacts
	"coverage": true, "__tests__": true, "__mocks__": true, ".nyc_output": true,
}

// skipExtensions drop files that can never contain indexable source.
var skipExtensions = map[string]bool{
	// Images
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".webp": true, ".tiff": true, ".avif": true,
	// Archives
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".tgz": true,
	// Native binaries and intermediates
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".obj": true, ".class": true, ".pyc": true, ".pyo": true,
	".wasm": true,
	// Documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".odt": true,
	// Media
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".flac": true, ".ogg": true, ".webm": true,
	// Fonts
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	// Databases
	".db": true, ".sqlite": true, ".sqlite3": true, ".mdb": true,
	// Source maps and lock artefacts
	".map": true, ".lock": true,
	// Certificates and keys
	".pem": true, ".crt": true, ".key": true, ".cer": true, ".pfx": true,
	// Data files
	".csv": true, ".parquet": true, ".avro": true, ".bin": true, ".dat": true,
	".log": true,
}

// skipFilenames drop files by exact (normalised) name.
var skipFilenames = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"composer.lock": true, "cargo.lock": true, "go.sum": true,
	".ds_store": true, ".gitignore": true, ".gitattributes": true,
	".dockerignore": true, ".npmignore": true, ".editorconfig": true,
	".prettierrc": true, ".eslintcache": true, ".npmrc": true,
	"thumbs.db": true,
	"changelog.md": true,
}

// skipCompound are compound-suffix globs matched with doublestar.
var skipCompound = []string{
	"*.min.js", "*.min.css", "*.bundle.js", "*.chunk.js", "*.generated.*", "*.d.ts",
}

// caseInsensitiveFS mirrors the platform's default filesystem semantics.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// IgnorePolicy decides which repository entries the walker skips. The
// fixed tables above always apply; the repository's .gitignore and the
// config's extra exclude globs are layered on top.
type IgnorePolicy struct {
	extraExclude []string
	gitignore    *gitignore.GitIgnore
}

// NewIgnorePolicy builds the policy for a repository root.
func NewIgnorePolicy(cfg *Config) *IgnorePolicy {
	p := &IgnorePolicy{extraExclude: cfg.Index.ExtraExclude}
	if cfg.Index.RespectGitignore {
		if gi, err := gitignore.CompileIgnoreFile(filepath.Join(cfg.Project.Root, ".gitignore")); err == nil {
			p.gitignore = gi
		}
	}
	return p
}

// normalize rewrites backslashes to forward slashes and lowercases on
// platforms with case-insensitive filesystems.
func normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if caseInsensitiveFS {
		path = strings.ToLower(path)
	}
	return path
}

// ShouldIgnoreDir reports whether a directory (repo-relative) is pruned.
func (p *IgnorePolicy) ShouldIgnoreDir(relPath string) bool {
	norm := normalize(relPath)
	base := norm
	if i := strings.LastIndexByte(norm, '/'); i >= 0 {
		base = norm[i+1:]
	}
	if skipDirs[base] {
		return true
	}
	if p.gitignore != nil && p.gitignore.MatchesPath(relPath+"/") {
		return true
	}
	for _, pattern := range p.extraExclude {
		if ok, _ := doublestar.Match(pattern, norm); ok {
			return true
		}
	}
	return false
}

// ShouldIgnoreFile reports whether a file (repo-relative) is skipped.
func (p *IgnorePolicy) ShouldIgnoreFile(relPath string) bool {
	norm := normalize(relPath)
	base := norm
	if i := strings.LastIndexByte(norm, '/'); i >= 0 {
		base = norm[i+1:]
	}

	// Segment check catches files handed in without a directory walk
	// (e.g. single-file re-extraction).
	for _, seg := range strings.Split(norm, "/") {
		if skipDirs[seg] {
			return true
		}
	}

	lowerBase := strings.ToLower(base)
	if skipFilenames[lowerBase] {
		return true
	}
	if strings.HasPrefix(lowerBase, "license") || strings.HasPrefix(lowerBase, ".env") {
		return true
	}

	if ext := strings.ToLower(filepath.Ext(base)); skipExtensions[ext] {
		return true
	}

	for _, pattern := range skipCompound {
		if ok, _ := doublestar.Match(pattern, lowerBase); ok {
			return true
		}
	}

	if p.gitignore != nil && p.gitignore.MatchesPath(relPath) {
		return true
	}
	for _, pattern := range p.extraExclude {
		if ok, _ := doublestar.Match(pattern, norm); ok {
			return true
		}
	}
	return false
}
