// Package entrypoint ranks symbols by their likelihood of being invoked
// from outside the codebase.
package entrypoint

import (
	"strings"

	"github.com/codeatlas/codeatlas/internal/framework"
	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/walker"
)

// Input carries everything the scorer inspects for one symbol.
type Input struct {
	Name        string
	Language    string
	FilePath    string
	ASTText     string
	IsExported  bool
	CallerCount int
	CalleeCount int
}

// Score is the numeric rank plus the reasons that shaped it.
type Score struct {
	Value   float64
	Reasons []string
}

// Multipliers applied on top of the fan-ratio base.
const (
	exportedBoost     = 2.0
	entryPatternBoost = 1.5
	utilityPenalty    = 0.3
)

var universalEntryNames = map[string]bool{
	"main": true, "init": true, "bootstrap": true, "start": true,
	"run": true, "setup": true, "configure": true,
}

var entryPrefixes = []string{
	"handle", "on", "process", "execute", "perform", "dispatch",
	"trigger", "fire", "emit",
}

var entrySuffixes = []string{"handler", "controller"}

// languageEntryNames extend the universal set per language.
var languageEntryNames = map[string][]string{
	lang.TypeScript: {"getserversideprops", "getstaticprops", "middleware"},
	lang.JavaScript: {"getserversideprops", "getstaticprops", "middleware"},
	lang.Python:     {"__main__", "application", "create_app"},
	lang.Java:       {"dofilter", "service"},
	lang.Go:         {"servehttp"},
	lang.Rust:       {"handle_request"},
	lang.PHP:        {"boot", "register", "__invoke"},
	lang.Swift:      {"application", "scene", "viewdidload"},
	lang.Kotlin:     {"oncreate", "onstart"},
}

var utilityPrefixes = []string{
	"get", "set", "is", "has", "can", "format", "parse", "validate",
	"to", "from", "encode", "serialize", "clone", "merge",
}

// ScoreSymbol computes the entry-point score for a symbol. Symbols in
// test files never qualify and score zero.
func ScoreSymbol(in Input) Score {
	if in.FilePath != "" && walker.IsTestFile(in.FilePath) {
		return Score{Value: 0, Reasons: []string{"test-file"}}
	}
	if in.CalleeCount == 0 {
		return Score{Value: 0, Reasons: []string{"no-outgoing-calls"}}
	}

	score := float64(in.CalleeCount) / float64(in.CallerCount+1)
	reasons := make([]string, 0, 4)

	if in.IsExported {
		score *= exportedBoost
		reasons = append(reasons, "exported")
	}
	if matchesEntryPattern(in.Name, in.Language) {
		score *= entryPatternBoost
		reasons = append(reasons, "entry-pattern")
	}
	if matchesUtilityPattern(in.Name) {
		score *= utilityPenalty
		reasons = append(reasons, "utility-pattern")
	}
	if hint := framework.DetectFromPath(in.FilePath); hint != nil {
		score *= hint.Multiplier
		reasons = append(reasons, "framework:"+hint.Reason)
	}
	if hint := framework.DetectFromAST(in.Language, in.ASTText); hint != nil {
		score *= hint.Multiplier
	}

	return Score{Value: score, Reasons: reasons}
}

func matchesEntryPattern(name, langTag string) bool {
	lower := strings.ToLower(name)
	if universalEntryNames[lower] {
		return true
	}
	for _, extra := range languageEntryNames[langTag] {
		if lower == extra {
			return true
		}
	}
	for _, prefix := range entryPrefixes {
		if strings.HasPrefix(lower, prefix) && len(lower) > len(prefix) {
			return true
		}
	}
	for _, suffix := range entrySuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			return true
		}
	}
	return false
}

func matchesUtilityPattern(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	lower := strings.ToLower(name)
	for _, prefix := range utilityPrefixes {
		if strings.HasPrefix(lower, prefix) && len(lower) > len(prefix) {
			return true
		}
	}
	return false
}
