// Package graph maintains the per-repo labeled-property graph: files,
// symbols, commits, modules and documents as nodes; IMPORTS/DEFINES/
// CALLS/INHERITS/MODIFIES/TOUCHES/ABOUT/FOLLOWS as edges.
package graph

import (
	"context"

	"github.com/contextvault/cv/internal/types"
)

// Store is the Graph Store's public contract. Every write is scoped to a
// repoID, namespaced internally as "cv_<repoId>" so multiple repos never
// collide inside a shared backend (spec.md §4.3).
type Store interface {
	UpsertFile(ctx context.Context, repoID string, file types.File) error
	UpsertSymbols(ctx context.Context, repoID string, file string, symbols []types.Symbol) error
	UpsertModule(ctx context.Context, repoID string, module types.Module) error
	UpsertCommit(ctx context.Context, repoID string, commit types.Commit) error
	UpsertDocument(ctx context.Context, repoID string, doc types.Document) error

	CreateEdge(ctx context.Context, repoID string, edge types.Edge) error

	DeleteFile(ctx context.Context, repoID string, path string) error

	// Query is the typed escape hatch: callers pass a Cypher-family
	// query built from fixed templates plus a params map. Each param is
	// rendered client-side by bindParams as an escaped literal before the
	// query is sent. Returns one map per result row.
	Query(ctx context.Context, repoID string, cypher string, params map[string]any) ([]map[string]any, error)

	// FindPath runs one variable-length match of 1..maxDepth hops (6 when
	// maxDepth <= 0) between the nodes whose key property equals fromKey
	// and toKey, keeping the first path found. The matched path is not
	// decoded: the returned edge list is always empty, and a zero-length
	// path (fromKey == toKey with no hop) is never matched.
	FindPath(ctx context.Context, repoID string, fromKey, toKey string, maxDepth int) ([]types.Edge, error)

	GetFile(ctx context.Context, repoID string, path string) (*types.File, error)
	GetSymbol(ctx context.Context, repoID string, qualifiedName string) (*types.Symbol, error)
	GetStats(ctx context.Context, repoID string) (Stats, error)

	// Clear wipes every node/edge for repoID. The Authored Metadata Log
	// is a separate store and survives this call.
	Clear(ctx context.Context, repoID string) error
	Close() error
}

// Stats summarizes one repo's graph for the status tool and health checks.
type Stats struct {
	FileCount    int `json:"file_count"`
	SymbolCount  int `json:"symbol_count"`
	EdgeCount    int `json:"edge_count"`
	ModuleCount  int `json:"module_count"`
	CommitCount  int `json:"commit_count"`
	DocumentCount int `json:"document_count"`
}

// namespace builds the per-repo graph name cv uses against FalkorDB's
// GRAPH.* commands, isolating repos sharing one backend instance.
func namespace(repoID string) string {
	return "cv_" + repoID
}
