package dispatcher

import "github.com/mark3labs/mcp-go/mcp"

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Semantic search over the indexed codebase (code chunks, docstrings, commits)"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language or code-like search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return (default: 10)")),
		mcp.WithString("collection", mcp.Description("code_chunks|docstrings|commits|document_chunks|summaries (default: code_chunks)")),
	)
}

func explainTool() mcp.Tool {
	return mcp.NewTool("explain",
		mcp.WithDescription("Return the hierarchical summary for a symbol, file, directory, or the repo root"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Summary ID: L1:<qualifiedName>, L2:<path>, L3:<dirpath>, or L4:<repoId>")),
	)
}

func graphTool() mcp.Tool {
	return mcp.NewTool("graph",
		mcp.WithDescription("Run a fixed-template Cypher query against the labeled-property graph"),
		mcp.WithString("query_name", mcp.Required(),
			mcp.Description("One of: modules, files_in_module, symbols_in_file, imports_of_file, callers_of, related")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Module name, file path, or qualified symbol name, depending on query_name")),
	)
}

func syncTool() mcp.Tool {
	return mcp.NewTool("sync",
		mcp.WithDescription("Trigger a delta-sync tick (incremental by default, full or force on request)"),
		mcp.WithString("mode", mcp.Description("incremental|full|force (default: incremental)")),
	)
}

func traversalTool() mcp.Tool {
	return mcp.NewTool("traversal",
		mcp.WithDescription("Navigate the codebase with a stateful session: in, out, lateral, jump, or stay"),
		mcp.WithString("session_id", mcp.Description("Existing session ID; omitted to start a new session")),
		mcp.WithString("direction", mcp.Required(), mcp.Description("in|out|lateral|jump|stay")),
		mcp.WithString("target", mcp.Description("Module/file/symbol name for in/lateral/jump")),
		mcp.WithString("depth", mcp.Description("repo|module|file|symbol; required for jump")),
		mcp.WithNumber("budget", mcp.Description("Byte budget for the returned context (default: 4000)")),
	)
}

func manifoldTool() mcp.Tool {
	return mcp.NewTool("manifold",
		mcp.WithDescription("Assemble weighted, budgeted context from the nine-dimension Context Manifold"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query driving the assembly")),
		mcp.WithNumber("budget", mcp.Description("Total byte budget (default: 8000)")),
		mcp.WithString("format", mcp.Description("markdown|json|xml (default: markdown)")),
	)
}

func docsTool() mcp.Tool {
	return mcp.NewTool("docs",
		mcp.WithDescription("Search ingested markdown documentation"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return (default: 10)")),
	)
}

func sessionTool() mcp.Tool {
	return mcp.NewTool("session",
		mcp.WithDescription("Inspect a traversal session's current position and breadcrumb history"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by a prior traversal call")),
	)
}
