package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/contextvault/cv/internal/deltasync"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/traversal"
	"github.com/contextvault/cv/internal/vectorstore"
)

func errResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf(format, args...))},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}

func handleSearch(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errResult("query parameter is required"), nil
		}
		limit := request.GetInt("limit", 10)
		collection := vectorstore.Collection(request.GetString("collection", string(vectorstore.CollectionCodeChunks)))

		vec, err := svc.Embed.Embed(ctx, query)
		if err != nil {
			logging.Errorf(logging.CategoryDispatch, "search: embed failed: %v", err)
			return errResult("embed failed: %v", err), nil
		}
		hits, err := svc.Vector.Search(ctx, svc.RepoID, collection, vec, limit, nil)
		if err != nil {
			return errResult("search failed: %v", err), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "# Search: %q\n\n", query)
		for i, h := range hits {
			text, _ := h.Payload["text"].(string)
			fmt.Fprintf(&sb, "%d. `%s` (score %.3f)\n%s\n\n", i+1, h.ID, h.Score, text)
		}
		return textResult(sb.String()), nil
	}
}

func handleExplain(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil || id == "" {
			return errResult("id parameter is required"), nil
		}
		pt, err := svc.Vector.GetSummary(ctx, svc.RepoID, id)
		if err != nil {
			return errResult("explain failed: %v", err), nil
		}
		if pt == nil {
			return textResult(fmt.Sprintf("no summary found for %s", id)), nil
		}
		summary, _ := pt.Payload["summary"].(string)
		return textResult(fmt.Sprintf("# %s\n\n%s\n", id, summary)), nil
	}
}

var graphQueries = map[string]string{
	"modules":           `MATCH (m:Module) RETURN m.name AS v ORDER BY v`,
	"files_in_module":   `MATCH (f:File {module: $target}) RETURN f.path AS v ORDER BY v`,
	"symbols_in_file":   `MATCH (f:File {path: $target})-[:DEFINES]->(s:Symbol) RETURN s.qualified_name AS v ORDER BY v`,
	"imports_of_file":   `MATCH (f:File {path: $target})-[:IMPORTS]->(t:File) RETURN t.path AS v ORDER BY v`,
	"callers_of":        `MATCH (c:Symbol)-[:CALLS]->(s:Symbol {qualified_name: $target}) RETURN c.qualified_name AS v ORDER BY v`,
	"related":           `MATCH (s:Symbol {qualified_name: $target})-[:CALLS*1..2]-(r:Symbol) RETURN DISTINCT r.qualified_name AS v LIMIT 25`,
}

func handleGraph(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryName, err := request.RequireString("query_name")
		if err != nil || queryName == "" {
			return errResult("query_name parameter is required"), nil
		}
		target, err := request.RequireString("target")
		if err != nil {
			return errResult("target parameter is required"), nil
		}
		cypher, ok := graphQueries[queryName]
		if !ok {
			return errResult("unknown query_name %q", queryName), nil
		}
		rows, err := svc.Graph.Query(ctx, svc.RepoID, cypher, map[string]any{"target": target})
		if err != nil {
			return errResult("graph query failed: %v", err), nil
		}
		var sb strings.Builder
		for _, row := range rows {
			if v, ok := row["v"].(string); ok {
				sb.WriteString(v)
				sb.WriteString("\n")
			}
		}
		if sb.Len() == 0 {
			return textResult("no results"), nil
		}
		return textResult(sb.String()), nil
	}
}

func handleSync(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mode := deltasync.ModeIncremental
		switch request.GetString("mode", "") {
		case "full":
			mode = deltasync.ModeFull
		case "force":
			mode = deltasync.ModeForce
		}
		stats, err := svc.Sync.Sync(ctx, mode)
		if err != nil {
			return errResult("sync failed: %v", err), nil
		}
		return textResult(fmt.Sprintf(
			"added=%d modified=%d unchanged=%d deleted=%d errored=%d duration=%s",
			stats.Added, stats.Modified, stats.Unchanged, stats.Deleted, stats.Errored, stats.Duration)), nil
	}
}

func handleTraversal(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		direction, err := request.RequireString("direction")
		if err != nil || direction == "" {
			return errResult("direction parameter is required"), nil
		}
		budget := request.GetInt("budget", 4000)
		sessionID := request.GetString("session_id", "")
		target := request.GetString("target", "")

		if sessionID == "" {
			sess, err := svc.Traversal.NewSession(ctx)
			if err != nil {
				return errResult("failed to start session: %v", err), nil
			}
			sessionID = sess.ID
		}

		var result *traversal.TraversalContextResult
		switch direction {
		case "in":
			result, err = svc.Traversal.In(ctx, sessionID, target, budget)
		case "out":
			result, err = svc.Traversal.Out(ctx, sessionID, budget)
		case "lateral":
			result, err = svc.Traversal.Lateral(ctx, sessionID, target, budget)
		case "stay":
			result, err = svc.Traversal.Stay(ctx, sessionID, budget)
		case "jump":
			depth := depthFromString(request.GetString("depth", ""))
			pos := traversal.Position{Depth: depth}
			switch depth {
			case traversal.DepthModule:
				pos.Module = target
			case traversal.DepthFile:
				pos.File = target
			case traversal.DepthSymbol:
				pos.Symbol = target
			}
			result, err = svc.Traversal.Jump(ctx, sessionID, pos, budget)
		default:
			return errResult("unknown direction %q", direction), nil
		}
		if err != nil {
			return errResult("traversal failed: %v", err), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "session_id=%s\n\n%s\n", sessionID, result.Summary)
		if len(result.NavigationHints) > 0 {
			sb.WriteString("\nhints: " + strings.Join(result.NavigationHints, "; ") + "\n")
		}
		if result.Truncated {
			sb.WriteString("\n(truncated to fit budget)\n")
		}
		return textResult(sb.String()), nil
	}
}

func depthFromString(s string) int {
	switch s {
	case "module":
		return traversal.DepthModule
	case "file":
		return traversal.DepthFile
	case "symbol":
		return traversal.DepthSymbol
	default:
		return traversal.DepthRepo
	}
}

func handleManifold(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errResult("query parameter is required"), nil
		}
		budget := request.GetInt("budget", 8000)
		format := request.GetString("format", "markdown")

		result, err := svc.Manifold.Assemble(ctx, query, budget, nil, format)
		if err != nil {
			return errResult("manifold assembly failed: %v", err), nil
		}
		return textResult(result.Rendered), nil
	}
}

func handleDocs(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errResult("query parameter is required"), nil
		}
		limit := request.GetInt("limit", 10)
		if svc.Docs == nil {
			return errResult("docs search is not configured"), nil
		}
		hits, err := svc.Docs.Search(ctx, svc.RepoID, query, limit)
		if err != nil {
			return errResult("docs search failed: %v", err), nil
		}
		var sb strings.Builder
		for i, h := range hits {
			text, _ := h.Payload["text"].(string)
			fmt.Fprintf(&sb, "%d. `%s` (score %.3f)\n%s\n\n", i+1, h.ID, h.Score, text)
		}
		if sb.Len() == 0 {
			return textResult("no matching documents"), nil
		}
		return textResult(sb.String()), nil
	}
}

func handleSession(svc *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil || sessionID == "" {
			return errResult("session_id parameter is required"), nil
		}
		sess, err := svc.Traversal.Session(sessionID)
		if err != nil {
			return errResult("session lookup failed: %v", err), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "position: module=%s file=%s symbol=%s depth=%d\n", sess.Position.Module, sess.Position.File, sess.Position.Symbol, sess.Position.Depth)
		fmt.Fprintf(&sb, "history depth: %d\n", len(sess.History))
		return textResult(sb.String()), nil
	}
}
