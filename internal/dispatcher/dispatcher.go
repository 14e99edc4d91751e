package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New builds the MCP server and registers all eight tools plus the
// three read-only resources, per spec.md §4.9.
func New(svc *Services, version string) *server.MCPServer {
	s := server.NewMCPServer("cv", version, server.WithToolCapabilities(true), server.WithResourceCapabilities(true, true))

	s.AddTool(searchTool(), handleSearch(svc))
	s.AddTool(explainTool(), handleExplain(svc))
	s.AddTool(graphTool(), handleGraph(svc))
	s.AddTool(syncTool(), handleSync(svc))
	s.AddTool(traversalTool(), handleTraversal(svc))
	s.AddTool(manifoldTool(), handleManifold(svc))
	s.AddTool(docsTool(), handleDocs(svc))
	s.AddTool(sessionTool(), handleSession(svc))

	registerResources(s, svc)
	return s
}

func registerResources(s *server.MCPServer, svc *Services) {
	s.AddResource(mcp.NewResource("cv://context/auto", "Auto-assembled context",
		mcp.WithResourceDescription("Context Manifold assembly for the active session's last query"),
		mcp.WithMIMEType("text/markdown")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			result, err := svc.Manifold.Assemble(ctx, "", 8000, nil, "markdown")
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/markdown", Text: result.Rendered}}, nil
		})

	s.AddResource(mcp.NewResource("cv://graph/summary", "Graph statistics",
		mcp.WithResourceDescription("File/symbol/edge/module counts for the indexed repo"),
		mcp.WithMIMEType("application/json")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			stats, err := svc.Graph.GetStats(ctx, svc.RepoID)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{jsonResource(req.Params.URI, stats)}, nil
		})

	s.AddResource(mcp.NewResource("cv://status", "Service status",
		mcp.WithResourceDescription("Active traversal sessions and repo identity"),
		mcp.WithMIMEType("application/json")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			status := map[string]any{
				"repo_id":         svc.RepoID,
				"active_sessions": svc.Traversal.ActiveSessions(),
			}
			return []mcp.ResourceContents{jsonResource(req.Params.URI, status)}, nil
		})
}

func jsonResource(uri string, v any) mcp.ResourceContents {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)}
}
