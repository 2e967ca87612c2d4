package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPolicy() *IgnorePolicy {
	cfg := Default()
	cfg.Project.Root = "/nonexistent"
	cfg.Index.RespectGitignore = false
	return NewIgnorePolicy(cfg)
}

func TestIgnorePolicy_Directories(t *testing.T) {
	p := testPolicy()
	tests := []struct {
		path    string
		ignored bool
	}{
		{".git", true},
		{"src/.git", true},
		{"node_modules", true},
		{"packages/app/node_modules", true},
		{"vendor", true},
		{"__pycache__", true},
		{"dist", true},
		{"target", true},
		{".next", true},
		{"coverage", true},
		{"__tests__", true},
		{"src", false},
		{"internal/app", false},
		{"distribution", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignored, p.ShouldIgnoreDir(tt.path), "dir %s", tt.path)
	}
}

func TestIgnorePolicy_Files(t *testing.T) {
	p := testPolicy()
	tests := []struct {
		path    string
		ignored bool
	}{
		{"logo.png", true},
		{"assets/font.woff2", true},
		{"release.tar.gz", true},
		{"app.exe", true},
		{"doc.pdf", true},
		{"data.db", true},
		{"bundle.js.map", true},
		{"package-lock.json", true},
		{"yarn.lock", true},
		{"Cargo.lock", true},
		{"go.sum", true},
		{"LICENSE", true},
		{"LICENSE.txt", true},
		{"CHANGELOG.md", true},
		{".env", true},
		{".env.production", true},
		{"app.min.js", true},
		{"styles.min.css", true},
		{"vendor.bundle.js", true},
		{"main.chunk.js", true},
		{"api.generated.ts", true},
		{"types.d.ts", true},
		{"node_modules/react/index.js", true},
		{"src/main.ts", false},
		{"internal/app/handler.go", false},
		{"README.md", false},
		{"dts.ts", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignored, p.ShouldIgnoreFile(tt.path), "file %s", tt.path)
	}
}

func TestIgnorePolicy_BackslashNormalisation(t *testing.T) {
	p := testPolicy()
	assert.True(t, p.ShouldIgnoreFile(`node_modules\react\index.js`))
}

func TestIgnorePolicy_ExtraExcludes(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = "/nonexistent"
	cfg.Index.RespectGitignore = false
	cfg.Index.ExtraExclude = []string{"**/generated/**"}
	p := NewIgnorePolicy(cfg)

	assert.True(t, p.ShouldIgnoreFile("src/generated/api.ts"))
	assert.False(t, p.ShouldIgnoreFile("src/handwritten/api.ts"))
}
