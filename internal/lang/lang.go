// Package lang maps file extensions to language tags. The mapping is a
// pure function, deterministic and case-insensitive on the extension only.
package lang

import (
	"path/filepath"
	"strings"
)

// Language tags used throughout the pipeline.
const (
	TypeScript = "typescript"
	JavaScript = "javascript"
	Python     = "python"
	Java       = "java"
	C          = "c"
	Cpp        = "cpp"
	CSharp     = "csharp"
	Go         = "go"
	Rust       = "rust"
	PHP        = "php"
	Swift      = "swift"
	Kotlin     = "kotlin"
)

var extToLanguage = map[string]string{
	".ts": TypeScript, ".tsx": TypeScript,
	".js": JavaScript, ".jsx": JavaScript,
	".py":   Python,
	".java": Java,
	".c":    C, ".h": C,
	".cpp": Cpp, ".cc": Cpp, ".cxx": Cpp, ".hpp": Cpp, ".hxx": Cpp, ".hh": Cpp,
	".cs":  CSharp,
	".go":  Go,
	".rs":  Rust,
	".php": PHP, ".phtml": PHP, ".php3": PHP, ".php4": PHP, ".php5": PHP, ".php8": PHP,
	".swift": Swift,
	".kt":    Kotlin, ".kts": Kotlin,
}

// FromPath returns the language tag for a file path, or "" when the
// extension is not supported. Unknown files are dropped by the pipeline.
func FromPath(path string) string {
	return FromExtension(filepath.Ext(path))
}

// FromExtension returns the language tag for an extension like ".ts".
func FromExtension(ext string) string {
	return extToLanguage[strings.ToLower(ext)]
}

// Supported reports whether the path maps to a supported language.
func Supported(path string) bool { return FromPath(path) != "" }

// All returns the supported language tags in stable order.
func All() []string {
	return []string{TypeScript, JavaScript, Python, Java, C, Cpp, CSharp, Go, Rust, PHP, Swift, Kotlin}
}
