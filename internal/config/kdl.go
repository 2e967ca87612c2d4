package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// ConfigFileName is looked up at the project root.
const ConfigFileName = ".codeatlas.kdl"

// LoadKDL loads configuration from <projectRoot>/.codeatlas.kdl. Returns
// (nil, nil) when no config file exists.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ConfigFileName)
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}
	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}
	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Project.Name = s
					}
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "include_content":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.IncludeContent = b
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "exclude":
					cfg.Index.ExtraExclude = append(cfg.Index.ExtraExclude, collectStringArgs(cn)...)
				}
			}
		case "pipeline":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.Workers = v
					}
				case "ast_cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.ASTCacheSize = v
					}
				case "max_trace_depth":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.MaxTraceDepth = v
					}
				case "min_steps":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.MinSteps = v
					}
				case "max_processes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.MaxProcesses = v
					}
				case "min_trace_confidence":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Pipeline.MinTraceConfidence = v
					}
				}
			}
		case "storage":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Storage.Dir = s
					}
				case "query_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Storage.QueryTimeoutSec = v
					}
				case "resource_wait_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Storage.ResourceWaitSec = v
					}
				}
			}
		}
	}

	return cfg, nil
}

// DefaultKDL renders the config template written by `codeatlas setup`.
func DefaultKDL(projectName string) string {
	return fmt.Sprintf(`project {
    name %q
}
index {
    max_file_size 10485760
    respect_gitignore true
}
pipeline {
    ast_cache_size 50
    max_trace_depth 8
    min_steps 3
    max_processes 50
    min_trace_confidence 0.5
}
`, projectName)
}

// Helpers over the kdl-go document model.

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
