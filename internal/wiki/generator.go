// Package wiki renders a Markdown overview of a persisted graph:
// communities and execution flows; entry points are not listed in a
// section of their own. Large-language-model
// enrichment plugs in behind the Enricher interface and is absent by
// default.
package wiki

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/codeatlas/codeatlas/internal/storage"
)

// Enricher augments generated sections with prose. Implementations are
// external; the generator works without one.
type Enricher interface {
	Describe(ctx context.Context, section, content string) (string, error)
}

// FrontMatter is the TOML header of the generated page.
type FrontMatter struct {
	Title       string    `toml:"title"`
	Repository  string    `toml:"repository"`
	GeneratedAt time.Time `toml:"generated_at"`
	Communities int       `toml:"communities"`
	Processes   int       `toml:"processes"`
}

// Generator renders the overview page.
type Generator struct {
	store    *storage.GraphStore
	enricher Enricher
	repoName string
}

// New creates a generator; enricher may be nil.
func New(store *storage.GraphStore, repoName string, enricher Enricher) *Generator {
	return &Generator{store: store, repoName: repoName, enricher: enricher}
}

// Render produces the Markdown document.
func (g *Generator) Render(ctx context.Context) (string, error) {
	communities, err := g.store.NodesByLabel(ctx, "Community")
	if err != nil {
		return "", err
	}
	processes, err := g.store.NodesByLabel(ctx, "Process")
	if err != nil {
		return "", err
	}

	front, err := toml.Marshal(FrontMatter{
		Title:       g.repoName + " architecture overview",
		Repository:  g.repoName,
		GeneratedAt: time.Now().UTC(),
		Communities: len(communities),
		Processes:   len(processes),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("+++\n")
	b.Write(front)
	b.WriteString("+++\n\n")
	b.WriteString("# " + g.repoName + "\n\n")

	b.WriteString("## Modules\n\n")
	for _, c := range communities {
		cohesion, _ := c.Extra["cohesion"].(float64)
		symbolCount, _ := c.Extra["symbolCount"].(float64)
		fmt.Fprintf(&b, "- **%s** — %d symbols, cohesion %.2f\n", c.Name, int(symbolCount), cohesion)
	}

	b.WriteString("\n## Execution flows\n\n")
	for _, p := range processes {
		processType, _ := p.Extra["processType"].(string)
		stepCount, _ := p.Extra["stepCount"].(float64)
		fmt.Fprintf(&b, "- %s (%s, %d steps)\n", p.Name, processType, int(stepCount))
	}

	page := b.String()
	if g.enricher != nil {
		enriched, err := g.enricher.Describe(ctx, "overview", page)
		if err == nil && enriched != "" {
			page += "\n## Notes\n\n" + enriched + "\n"
		}
	}
	return page, nil
}
