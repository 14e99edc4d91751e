// Package dispatcher is the Tool Dispatcher (spec.md §4.9): a
// mark3labs/mcp-go server exposing one tool per core service, grounded
// line-for-line on ternarybob-quaero's cmd/quaero-mcp/{main,tools,handlers}.go
// (mcp.NewTool builders, server.ToolHandlerFunc handlers, RequireString/
// GetInt argument validation, CallToolResult with isError rather than a
// protocol-level throw).
package dispatcher

import (
	"context"

	"github.com/contextvault/cv/internal/aiclient"
	"github.com/contextvault/cv/internal/deltasync"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/manifold"
	"github.com/contextvault/cv/internal/summarizer"
	"github.com/contextvault/cv/internal/traversal"
	"github.com/contextvault/cv/internal/vectorstore"
)

// DocSearcher is the narrow slice of docs ingestion the docs tool needs:
// semantic search restricted to the document_chunks collection.
type DocSearcher interface {
	Search(ctx context.Context, repoID, query string, limit int) ([]vectorstore.SearchResult, error)
}

// Services bundles every core service the dispatcher's tools resolve
// calls to, one field per spec.md §4.9 service name (search, explain,
// graph, sync, traversal, manifold, docs, session).
type Services struct {
	RepoID     string
	Graph      graph.Store
	Vector     vectorstore.Store
	Embed      embedding.Engine
	Gen        aiclient.Generator
	Sync       *deltasync.Engine
	Traversal  *traversal.Engine
	Manifold   *manifold.Engine
	Summarizer *summarizer.Engine
	Docs       DocSearcher
}
