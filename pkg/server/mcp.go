package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/onemcp/onemcp/pkg/indexer"
	"github.com/onemcp/onemcp/pkg/retrieval"
)

// IndexFunc re-indexes the handbook and returns the run summary. The MCP
// adapter is the only surface that triggers indexing outside the CLI.
type IndexFunc func(ctx context.Context) (*indexer.Summary, error)

// MCPOptions wires the MCP adapter.
type MCPOptions struct {
	Name      string
	Version   string
	Retrieval *retrieval.Service
	Index     IndexFunc
	Logger    *slog.Logger
}

// NewMCP builds an MCP server exposing retrieve_context and, when an index
// function is provided, index_handbook. The returned server also carries
// the progress notification channel.
func NewMCP(opts MCPOptions) (*server.MCPServer, error) {
	if opts.Retrieval == nil {
		return nil, fmt.Errorf("server: retrieval service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "onemcp"
	}

	s := server.NewMCPServer(opts.Name, opts.Version)

	retrieveTool := mcp.NewTool("retrieve_context",
		mcp.WithDescription("Retrieve entity- and operation-oriented context bundles from the handbook graph. The request is a JSON object of the form {\"context\":[{\"entity\":\"Sale\",\"operations\":[\"Retrieve\"]}]}."),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("Retrieval request as a JSON string"),
		),
	)
	s.AddTool(retrieveTool, func(ctx context.Context, call mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := call.RequireString("request")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var req retrieval.Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
		}
		resp, err := opts.Retrieval.Retrieve(ctx, req)
		if err != nil {
			opts.Logger.Error("mcp retrieval failed", "error", err)
			return mcp.NewToolResultError("retrieval failed"), nil
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError("failed to encode response"), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	})

	if opts.Index != nil {
		indexTool := mcp.NewTool("index_handbook",
			mcp.WithDescription("Re-index the configured handbook and return the run summary."),
		)
		s.AddTool(indexTool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			summary, err := opts.Index(ctx)
			if err != nil {
				opts.Logger.Error("mcp indexing failed", "error", err)
				return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
			}
			out, err := json.Marshal(summary)
			if err != nil {
				return mcp.NewToolResultError("failed to encode summary"), nil
			}
			return mcp.NewToolResultText(string(out)), nil
		})
	}

	return s, nil
}

// ServeStdio runs the MCP server on stdin/stdout until EOF.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
