package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
)

// RedisStore implements Store over a FalkorDB (Redis-protocol graph
// module) backend, issuing GRAPH.QUERY/GRAPH.DELETE via the RESP client.
// Connection setup grounded on evalgo-org-eve's db/repository/redis.go;
// the Cypher-family query shapes are cv's own, since no pack repo talks
// to a graph database.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials url (a redis:// URL) and verifies connectivity.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindConfig, "NewRedisStore", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, cverr.Wrap(cverr.KindGraph, "NewRedisStore", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) query(ctx context.Context, graphName, cypher string, params map[string]any) ([]map[string]any, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "GRAPH.QUERY")
	defer timer.StopWithThreshold(500 * time.Millisecond)

	full := bindParams(cypher, params)
	res, err := s.client.Do(ctx, "GRAPH.QUERY", graphName, full, "--compact").Result()
	if err != nil {
		return nil, cverr.Wrap(cverr.KindGraph, "Query", err)
	}
	return decodeGraphResult(res), nil
}

func (s *RedisStore) exec(ctx context.Context, repoID, cypher string, params map[string]any) error {
	_, err := s.query(ctx, namespace(repoID), cypher, params)
	return err
}

func (s *RedisStore) Query(ctx context.Context, repoID string, cypher string, params map[string]any) ([]map[string]any, error) {
	return s.query(ctx, namespace(repoID), cypher, params)
}

func (s *RedisStore) UpsertFile(ctx context.Context, repoID string, file types.File) error {
	const q = `MERGE (f:File {path: $path})
SET f.language = $language, f.git_hash = $git_hash, f.size = $size,
    f.lines_of_code = $lines_of_code, f.complexity = $complexity, f.last_modified = $last_modified`
	return s.exec(ctx, repoID, q, map[string]any{
		"path": file.Path, "language": file.Language, "git_hash": file.GitHash,
		"size": file.Size, "lines_of_code": file.LinesOfCode, "complexity": file.Complexity,
		"last_modified": file.LastModified.Unix(),
	})
}

func (s *RedisStore) UpsertSymbols(ctx context.Context, repoID string, file string, symbols []types.Symbol) error {
	// Delete-then-recreate the symbol set owned by file, so a symbol
	// removed from the source disappears from the graph too.
	if err := s.exec(ctx, repoID, `MATCH (f:File {path: $path})-[:DEFINES]->(s:Symbol) DETACH DELETE s`,
		map[string]any{"path": file}); err != nil {
		return err
	}
	for _, sym := range symbols {
		const q = `MERGE (f:File {path: $file})
MERGE (s:Symbol {qualified_name: $qn})
SET s.name = $name, s.kind = $kind, s.start_line = $start_line, s.end_line = $end_line,
    s.signature = $signature, s.visibility = $visibility, s.complexity = $complexity
MERGE (f)-[:DEFINES]->(s)`
		if err := s.exec(ctx, repoID, q, map[string]any{
			"file": file, "qn": sym.QualifiedName, "name": sym.Name, "kind": string(sym.Kind),
			"start_line": sym.StartLine, "end_line": sym.EndLine, "signature": sym.Signature,
			"visibility": sym.Visibility, "complexity": sym.Complexity,
		}); err != nil {
			return err
		}
		for _, call := range sym.Calls {
			const callQ = `MATCH (caller:Symbol {qualified_name: $caller})
MERGE (callee:Symbol {name: $callee})
MERGE (caller)-[r:CALLS]->(callee)
SET r.line = $line, r.is_conditional = $conditional`
			if err := s.exec(ctx, repoID, callQ, map[string]any{
				"caller": sym.QualifiedName, "callee": call.CalleeName,
				"line": call.Line, "conditional": call.IsConditional,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RedisStore) UpsertModule(ctx context.Context, repoID string, module types.Module) error {
	const q = `MERGE (m:Module {path: $path})
SET m.name = $name, m.type = $type, m.file_count = $file_count, m.symbol_count = $symbol_count`
	return s.exec(ctx, repoID, q, map[string]any{
		"path": module.Path, "name": module.Name, "type": string(module.Type),
		"file_count": module.FileCount, "symbol_count": module.SymbolCount,
	})
}

func (s *RedisStore) UpsertCommit(ctx context.Context, repoID string, commit types.Commit) error {
	const q = `MERGE (c:Commit {sha: $sha})
SET c.message = $message, c.author = $author, c.timestamp = $timestamp,
    c.files_changed = $files_changed, c.insertions = $insertions, c.deletions = $deletions`
	return s.exec(ctx, repoID, q, map[string]any{
		"sha": commit.SHA, "message": commit.Message, "author": commit.Author,
		"timestamp": commit.Timestamp.Unix(), "files_changed": commit.FilesChanged,
		"insertions": commit.Insertions, "deletions": commit.Deletions,
	})
}

func (s *RedisStore) UpsertDocument(ctx context.Context, repoID string, doc types.Document) error {
	const q = `MERGE (d:Document {path: $path})
SET d.document_type = $document_type, d.status = $status`
	if err := s.exec(ctx, repoID, q, map[string]any{
		"path": doc.Path, "document_type": doc.DocumentType, "status": string(doc.Status),
	}); err != nil {
		return err
	}
	for _, link := range doc.Links {
		if !link.IsCodeRef {
			continue
		}
		const linkQ = `MATCH (d:Document {path: $path})
MERGE (f:File {path: $target})
MERGE (d)-[:ABOUT]->(f)`
		if err := s.exec(ctx, repoID, linkQ, map[string]any{"path": doc.Path, "target": link.Target}); err != nil {
			return err
		}
	}
	return nil
}

// endpointPattern returns the bare Cypher node pattern for a typed edge
// endpoint: labeled when there's exactly one possible label, unlabeled
// (filtered later by endpointCondition) when the endpoint is ambiguous.
func endpointPattern(varName string, labels ...string) string {
	if len(labels) == 1 {
		return fmt.Sprintf("(%s:%s)", varName, labels[0])
	}
	return fmt.Sprintf("(%s)", varName)
}

// endpointCondition returns the WHERE-clause fragment matching the real
// node a typed edge endpoint refers to, keyed on that label's actual
// unique property (File.path, Symbol.qualified_name, ...) rather than a
// "key" property no node ever carries. Kept separate from the pattern so
// it composes with both a plain MATCH (CreateEdge) and a variable-length
// path MATCH, where WHERE can only follow the whole pattern.
func endpointCondition(varName, paramName string, labels ...string) string {
	if len(labels) == 1 {
		return fmt.Sprintf("%s.%s = $%s", varName, keyPropertyFor(labels[0]), paramName)
	}
	conds := make([]string, len(labels))
	for i, l := range labels {
		conds[i] = fmt.Sprintf("%s.%s = $%s", varName, keyPropertyFor(l), paramName)
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

// keyPropertyFor returns the property that uniquely identifies a node of
// the given label, per the Data Model (spec.md §3).
func keyPropertyFor(label string) string {
	switch label {
	case "File", "Module", "Document":
		return "path"
	case "Symbol":
		return "qualified_name"
	case "Commit":
		return "sha"
	case "SessionKnowledge":
		return "id"
	default:
		return "path"
	}
}

// edgeEndpointLabels names the (from-labels, to-labels) a typed edge
// connects, per the Data Model's edge table (spec.md §3). Endpoints with
// more than one possible label (ABOUT's File|Symbol target) are matched
// by an OR across each label's key property rather than a single MATCH.
func edgeEndpointLabels(t types.EdgeType) (from []string, to []string) {
	switch t {
	case types.EdgeImports:
		return []string{"File"}, []string{"File"}
	case types.EdgeDefines:
		return []string{"File"}, []string{"Symbol"}
	case types.EdgeCalls, types.EdgeInherits:
		return []string{"Symbol"}, []string{"Symbol"}
	case types.EdgeModifies:
		return []string{"Commit"}, []string{"File"}
	case types.EdgeTouches:
		return []string{"Commit"}, []string{"Symbol"}
	case types.EdgeAbout:
		return []string{"SessionKnowledge"}, []string{"File", "Symbol"}
	case types.EdgeFollows:
		return []string{"SessionKnowledge"}, []string{"SessionKnowledge"}
	default:
		return []string{"File"}, []string{"File"}
	}
}

// CreateEdge merges a typed edge between the two real nodes it names,
// matching each endpoint on its label's actual key property instead of a
// "key" property no node ever sets — a MATCH against a nonexistent
// property would otherwise silently create two new label-less phantom
// nodes per call (spec.md §8 scenario 1's IMPORTS edge must connect the
// two real File nodes, not stand-ins).
func (s *RedisStore) CreateEdge(ctx context.Context, repoID string, edge types.Edge) error {
	fromLabels, toLabels := edgeEndpointLabels(edge.Type)
	q := fmt.Sprintf(`MATCH %s, %s WHERE %s AND %s MERGE (a)-[r:%s]->(b) SET r += $props`,
		endpointPattern("a", fromLabels...), endpointPattern("b", toLabels...),
		endpointCondition("a", "from", fromLabels...), endpointCondition("b", "to", toLabels...),
		string(edge.Type))
	return s.exec(ctx, repoID, q, map[string]any{"from": edge.From, "to": edge.To, "props": edge.Properties})
}

func (s *RedisStore) DeleteFile(ctx context.Context, repoID string, path string) error {
	const q = `MATCH (f:File {path: $path})
OPTIONAL MATCH (f)-[:DEFINES]->(s:Symbol)
DETACH DELETE f, s`
	return s.exec(ctx, repoID, q, map[string]any{"path": path})
}

// findPathLabels lists every node label FindPath's caller-supplied keys
// might name, since the generic fromKey/toKey strings carry no type tag
// of their own (unlike CreateEdge's typed Edge). Matched the same way as
// endpointCondition's ambiguous-endpoint case: an OR across each label's
// real key property rather than a nonexistent "key" property.
var findPathLabels = []string{"File", "Symbol", "Module", "Commit", "Document"}

func (s *RedisStore) FindPath(ctx context.Context, repoID string, fromKey, toKey string, maxDepth int) ([]types.Edge, error) {
	if maxDepth <= 0 {
		maxDepth = 6
	}
	q := fmt.Sprintf(`MATCH p = (a)-[*1..%d]-(b) WHERE %s AND %s RETURN p LIMIT 1`,
		maxDepth, endpointCondition("a", "from", findPathLabels...), endpointCondition("b", "to", findPathLabels...))
	rows, err := s.query(ctx, namespace(repoID), q, map[string]any{"from": fromKey, "to": toKey})
	if err != nil {
		return nil, err
	}
	return pathToEdges(rows), nil
}

func (s *RedisStore) GetFile(ctx context.Context, repoID string, path string) (*types.File, error) {
	rows, err := s.query(ctx, namespace(repoID), `MATCH (f:File {path: $path}) RETURN f`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToFile(rows[0]), nil
}

func (s *RedisStore) GetSymbol(ctx context.Context, repoID string, qualifiedName string) (*types.Symbol, error) {
	rows, err := s.query(ctx, namespace(repoID), `MATCH (s:Symbol {qualified_name: $qn}) RETURN s`, map[string]any{"qn": qualifiedName})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToSymbol(rows[0]), nil
}

func (s *RedisStore) GetStats(ctx context.Context, repoID string) (Stats, error) {
	counts := func(label string) int {
		rows, err := s.query(ctx, namespace(repoID), fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS c", label), nil)
		if err != nil || len(rows) == 0 {
			return 0
		}
		if c, ok := rows[0]["c"].(int64); ok {
			return int(c)
		}
		return 0
	}
	edgeCount := 0
	if rows, err := s.query(ctx, namespace(repoID), "MATCH ()-[r]->() RETURN count(r) AS c", nil); err == nil && len(rows) > 0 {
		if c, ok := rows[0]["c"].(int64); ok {
			edgeCount = int(c)
		}
	}
	return Stats{
		FileCount:     counts("File"),
		SymbolCount:   counts("Symbol"),
		ModuleCount:   counts("Module"),
		CommitCount:   counts("Commit"),
		DocumentCount: counts("Document"),
		EdgeCount:     edgeCount,
	}, nil
}

func (s *RedisStore) Clear(ctx context.Context, repoID string) error {
	if err := s.client.Do(ctx, "GRAPH.DELETE", namespace(repoID)).Err(); err != nil {
		// FalkorDB returns an error if the graph doesn't exist yet; not fatal.
		logging.Debugf(logging.CategoryGraph, "GRAPH.DELETE %s: %v", namespace(repoID), err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
