// Package resolve maps raw import specifiers to in-repo file paths using
// a pre-built suffix index, and materialises the import map consumed by
// call resolution.
package resolve

import (
	"path"
	"strings"
)

// candidate extensions tried when a specifier omits one.
var resolveExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".py", ".go", ".rs", ".java",
	".cs", ".c", ".h", ".cpp", ".hpp", ".php", ".kt", ".swift",
}

// Resolver holds the immutable resolution context for one run.
type Resolver struct {
	allFilePaths map[string]bool
	// suffixIndex maps every path-suffix of every file (full path down to
	// the basename) to the first file carrying it. Multi-match collisions
	// keep the first file in sorted file order; no proximity
	// disambiguation is attempted.
	suffixIndex map[string]string

	resolveCache map[cacheKey]string
}

type cacheKey struct {
	fromFile  string
	specifier string
}

// NewResolver builds the resolution context from the indexed file list.
// filePaths must be repo-relative; order determines which file wins a
// suffix collision, so callers pass them sorted.
func NewResolver(filePaths []string) *Resolver {
	r := &Resolver{
		allFilePaths: make(map[string]bool, len(filePaths)),
		suffixIndex:  make(map[string]string),
		resolveCache: make(map[cacheKey]string),
	}
	for _, fp := range filePaths {
		norm := strings.ReplaceAll(fp, "\\", "/")
		r.allFilePaths[norm] = true
		for _, suffix := range pathSuffixes(norm) {
			if _, taken := r.suffixIndex[suffix]; !taken {
				r.suffixIndex[suffix] = norm
			}
		}
	}
	return r
}

// pathSuffixes yields every trailing segment sequence of a path, from
// the full path down to the basename.
func pathSuffixes(p string) []string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for i := 0; i < len(segments); i++ {
		out = append(out, strings.Join(segments[i:], "/"))
	}
	return out
}

// Resolve maps (fromFile, specifier) to a repo-relative target file, or
// "" when unresolved. Results are memoised.
func (r *Resolver) Resolve(fromFile, specifier string) string {
	key := cacheKey{fromFile, specifier}
	if target, ok := r.resolveCache[key]; ok {
		return target
	}
	target := r.resolve(fromFile, specifier)
	r.resolveCache[key] = target
	return target
}

func (r *Resolver) resolve(fromFile, specifier string) string {
	spec := strings.ReplaceAll(specifier, "\\", "/")

	// Relative specifiers resolve against the importing file's directory.
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		joined := path.Join(path.Dir(fromFile), spec)
		if target := r.tryPath(joined); target != "" {
			return target
		}
	}

	// Module-style specifiers: normalise the separators the source
	// language uses (python/java dots, rust double-colons) and consult
	// the suffix index.
	normalized := normalizeSpecifier(spec)
	if normalized == "" {
		return ""
	}
	if target := r.trySuffix(normalized); target != "" {
		return target
	}
	return ""
}

// tryPath checks a joined path directly and with candidate extensions.
func (r *Resolver) tryPath(p string) string {
	if r.allFilePaths[p] {
		return p
	}
	for _, ext := range resolveExtensions {
		if r.allFilePaths[p+ext] {
			return p + ext
		}
	}
	return ""
}

// trySuffix consults the suffix index with and without extensions.
func (r *Resolver) trySuffix(spec string) string {
	if target, ok := r.suffixIndex[spec]; ok {
		return target
	}
	for _, ext := range resolveExtensions {
		if target, ok := r.suffixIndex[spec+ext]; ok {
			return target
		}
	}
	return ""
}

// normalizeSpecifier converts language-native module paths to slash
// form and trims grouping syntax.
func normalizeSpecifier(spec string) string {
	spec = strings.TrimSpace(spec)
	spec = strings.TrimPrefix(spec, "crate::")
	spec = strings.TrimPrefix(spec, "self::")
	spec = strings.TrimPrefix(spec, "super::")
	spec = strings.ReplaceAll(spec, "::", "/")
	// Rust use groups and wildcards never address a single file.
	if i := strings.IndexAny(spec, "{*"); i >= 0 {
		spec = spec[:i]
		spec = strings.TrimSuffix(spec, "/")
	}
	if !strings.Contains(spec, "/") {
		spec = strings.ReplaceAll(spec, ".", "/")
	}
	spec = strings.Trim(spec, "/\\ ")
	return spec
}

// ImportMap records, per file, the resolved in-repo targets in first-seen
// order. Order matters: call resolution breaks import ties by it.
type ImportMap struct {
	targets map[string][]string
	seen    map[cacheKey]bool
}

// NewImportMap creates an empty map.
func NewImportMap() *ImportMap {
	return &ImportMap{
		targets: make(map[string][]string),
		seen:    make(map[cacheKey]bool),
	}
}

// Add appends a resolved target, preserving first-seen order.
func (m *ImportMap) Add(fromFile, toFile string) {
	if fromFile == toFile || toFile == "" {
		return
	}
	key := cacheKey{fromFile, toFile}
	if m.seen[key] {
		return
	}
	m.seen[key] = true
	m.targets[fromFile] = append(m.targets[fromFile], toFile)
}

// Targets returns the resolved imports of a file in insertion order.
func (m *ImportMap) Targets(fromFile string) []string {
	return m.targets[fromFile]
}

// Files returns the number of files with at least one resolved import.
func (m *ImportMap) Files() int { return len(m.targets) }
