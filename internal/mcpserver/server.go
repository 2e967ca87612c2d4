// Package mcpserver exposes the persisted graph to AI assistants over
// the Model Context Protocol. All tools are read-only views of the
// embedded store.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeatlas/codeatlas/internal/query"
	"github.com/codeatlas/codeatlas/internal/storage"
	"github.com/codeatlas/codeatlas/internal/version"
)

// Server wires the MCP transport to the query toolkit.
type Server struct {
	mcpServer *mcp.Server
	store     *storage.GraphStore
	toolkit   *query.Toolkit
}

// New creates the server over an opened read-only store.
func New(store *storage.GraphStore) *Server {
	s := &Server{
		store:   store,
		toolkit: query.New(store),
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "codeatlas",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

type querySymbolArgs struct {
	Name string `json:"name" jsonschema:"required,description:Symbol name to look up; fuzzy matching applies when no exact match exists"`
}

type findImpactArgs struct {
	SymbolID string `json:"symbol_id" jsonschema:"required,description:Graph node id of the symbol to analyse"`
}

type listProcessesArgs struct{}

type listCommunitiesArgs struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "query_symbol",
		Description: "Locates symbols by name in the code knowledge graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args querySymbolArgs) (*mcp.CallToolResult, any, error) {
		matches, err := s.toolkit.FindSymbol(ctx, args.Name)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(matches)
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_impact",
		Description: "Computes the blast radius of changing a symbol: transitive callers, importing files and affected processes",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args findImpactArgs) (*mcp.CallToolResult, any, error) {
		impact, err := s.toolkit.ImpactOf(ctx, args.SymbolID)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(impact)
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_processes",
		Description: "Lists detected execution flows (entry point to terminal call chains)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listProcessesArgs) (*mcp.CallToolResult, any, error) {
		nodes, err := s.store.NodesByLabel(ctx, "Process")
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(nodes)
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_communities",
		Description: "Lists detected module communities with cohesion and keywords",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listCommunitiesArgs) (*mcp.CallToolResult, any, error) {
		nodes, err := s.store.NodesByLabel(ctx, "Community")
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(nodes)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// DefaultQueryTimeout mirrors the storage layer's per-query budget.
const DefaultQueryTimeout = 30 * time.Second
