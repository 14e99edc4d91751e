package traversal

import (
	"context"
	"sort"
	"time"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

// Direction is one of the five navigation moves spec.md §4.6 defines.
type Direction string

const (
	DirIn      Direction = "in"
	DirOut     Direction = "out"
	DirLateral Direction = "lateral"
	DirJump    Direction = "jump"
	DirStay    Direction = "stay"
)

// TraversalContextResult is the assembled view returned after any move:
// the new position, surrounding context, and hints for where to go next.
type TraversalContextResult struct {
	Position       Position `json:"position"`
	Summary        string   `json:"summary"`
	Files          []string `json:"files,omitempty"`
	Symbols        []string `json:"symbols,omitempty"`
	Callers        []string `json:"callers,omitempty"`
	Callees        []string `json:"callees,omitempty"`
	Imports        []string `json:"imports,omitempty"`
	Related        []string `json:"related,omitempty"`
	NavigationHints []string `json:"navigation_hints,omitempty"`
	Truncated      bool     `json:"truncated,omitempty"`
}

// Engine drives per-session navigation for one repo.
type Engine struct {
	repoID string
	g      graph.Store
	vs     vectorstore.Store
	store  *store
}

// NewEngine builds a traversal engine backed by root/.cv/sessions/ and
// the given repo's graph/vector stores.
func NewEngine(root, repoID string, g graph.Store, vs vectorstore.Store, sessionExpiry time.Duration) *Engine {
	return &Engine{
		repoID: repoID,
		g:      g,
		vs:     vs,
		store:  newStore(root, sessionExpiry),
	}
}

// NewSession starts a fresh session positioned at the repo root.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	return e.store.create()
}

// Session returns a live (non-expired) session by id.
func (e *Engine) Session(id string) (*Session, error) {
	return e.store.get(id)
}

// In moves one level deeper: module within repo, file within module, or
// symbol within file. target names the child to move to.
func (e *Engine) In(ctx context.Context, sessionID, target string, budget int) (*TraversalContextResult, error) {
	sess, err := e.store.get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Position.Depth >= DepthSymbol {
		return nil, cverr.New(cverr.KindValidation, "traversal.In", "already at symbol depth, cannot go deeper")
	}

	next := sess.Position
	next.Depth++
	next.Timestamp = time.Now()
	switch next.Depth {
	case DepthModule:
		next.Module = target
	case DepthFile:
		next.File = target
	case DepthSymbol:
		next.Symbol = target
	}

	sess.History = append(sess.History, sess.Position)
	sess.Position = next
	return e.commitAndAssemble(ctx, sess, budget)
}

// Out moves back to the parent position (the top of the history stack).
func (e *Engine) Out(ctx context.Context, sessionID string, budget int) (*TraversalContextResult, error) {
	sess, err := e.store.get(sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.History) == 0 {
		return nil, cverr.New(cverr.KindValidation, "traversal.Out", "no parent position, already at session root")
	}
	parent := sess.History[len(sess.History)-1]
	sess.History = sess.History[:len(sess.History)-1]
	parent.Timestamp = time.Now()
	sess.Position = parent
	return e.commitAndAssemble(ctx, sess, budget)
}

// Lateral moves to a sibling target at the same depth.
func (e *Engine) Lateral(ctx context.Context, sessionID, target string, budget int) (*TraversalContextResult, error) {
	sess, err := e.store.get(sessionID)
	if err != nil {
		return nil, err
	}
	next := sess.Position
	next.Timestamp = time.Now()
	switch next.Depth {
	case DepthModule:
		next.Module = target
	case DepthFile:
		next.File = target
	case DepthSymbol:
		next.Symbol = target
	default:
		return nil, cverr.New(cverr.KindValidation, "traversal.Lateral", "no sibling axis at repo depth")
	}

	sess.History = append(sess.History, sess.Position)
	sess.Position = next
	return e.commitAndAssemble(ctx, sess, budget)
}

// Jump moves directly to an arbitrary position, regardless of depth.
func (e *Engine) Jump(ctx context.Context, sessionID string, pos Position, budget int) (*TraversalContextResult, error) {
	sess, err := e.store.get(sessionID)
	if err != nil {
		return nil, err
	}
	pos.Timestamp = time.Now()
	sess.History = append(sess.History, sess.Position)
	sess.Position = pos
	return e.commitAndAssemble(ctx, sess, budget)
}

// Stay refreshes the context for the current position without moving.
func (e *Engine) Stay(ctx context.Context, sessionID string, budget int) (*TraversalContextResult, error) {
	sess, err := e.store.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Position.Timestamp = time.Now()
	return e.commitAndAssemble(ctx, sess, budget)
}

func (e *Engine) commitAndAssemble(ctx context.Context, sess *Session, budget int) (*TraversalContextResult, error) {
	result, err := e.assemble(ctx, sess.Position, budget)
	if err != nil {
		return nil, err
	}
	if err := e.store.save(sess); err != nil {
		return nil, err
	}
	return result, nil
}

// assemble builds the TraversalContextResult for pos: summary plus
// files/symbols/callers/callees/imports/related, with lists trimmed to
// fit the budget (summary is never dropped). No source code is attached.
func (e *Engine) assemble(ctx context.Context, pos Position, budget int) (*TraversalContextResult, error) {
	result := &TraversalContextResult{Position: pos}

	switch pos.Depth {
	case DepthRepo:
		result.Summary = e.summaryText(ctx, "L4:"+e.repoID)
		result.Files = e.topLevelModules(ctx)
		result.NavigationHints = []string{"in <module> to descend into a module"}
	case DepthModule:
		result.Summary = e.summaryText(ctx, "L3:"+pos.Module)
		result.Files = e.filesInModule(ctx, pos.Module)
		result.NavigationHints = []string{"in <file> to descend, out to return to repo root, lateral <module> for a sibling module"}
	case DepthFile:
		result.Summary = e.summaryText(ctx, "L2:"+pos.File)
		file, _ := e.g.GetFile(ctx, e.repoID, pos.File)
		if file != nil {
			result.Files = []string{file.Path}
		}
		result.Symbols = e.symbolsInFile(ctx, pos.File)
		result.Imports = e.importsOfFile(ctx, pos.File)
		result.NavigationHints = []string{"in <symbol> to descend, out for the containing module, lateral <file> for a sibling file"}
	case DepthSymbol:
		result.Summary = e.summaryText(ctx, "L1:"+pos.Symbol)
		sym, err := e.g.GetSymbol(ctx, e.repoID, pos.Symbol)
		if err == nil && sym != nil {
			result.Callees = callees(*sym)
		}
		result.Callers = e.callersOf(ctx, pos.Symbol)
		result.Related = e.related(ctx, pos.Symbol)
		result.NavigationHints = []string{"out for the containing file, lateral <symbol> for a sibling symbol"}
	}

	if result.Summary == "" {
		result.Summary = "(no cached summary for this position yet; run a sync pass)"
	}

	applyBudget(result, budget)
	return result, nil
}

// summaryText fetches a cached hierarchical summary by its vector-store
// point ID, tolerating a miss (returns "").
func (e *Engine) summaryText(ctx context.Context, id string) string {
	pt, err := e.vs.GetSummary(ctx, e.repoID, id)
	if err != nil || pt == nil {
		return ""
	}
	s, _ := pt.Payload["summary"].(string)
	return s
}

func (e *Engine) topLevelModules(ctx context.Context) []string {
	rows, err := e.g.Query(ctx, e.repoID, `MATCH (m:Module) RETURN m.path AS path ORDER BY m.path`, nil)
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: listing modules failed: %v", err)
		return nil
	}
	return stringColumn(rows, "path")
}

func (e *Engine) filesInModule(ctx context.Context, module string) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (f:File) WHERE f.path STARTS WITH $prefix RETURN f.path AS path ORDER BY f.path`,
		map[string]any{"prefix": module})
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: listing files in %s failed: %v", module, err)
		return nil
	}
	return stringColumn(rows, "path")
}

func (e *Engine) symbolsInFile(ctx context.Context, path string) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (f:File {path: $path})-[:DEFINES]->(s:Symbol) RETURN s.qualified_name AS qn ORDER BY s.qualified_name`,
		map[string]any{"path": path})
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: listing symbols in %s failed: %v", path, err)
		return nil
	}
	return stringColumn(rows, "qn")
}

func (e *Engine) importsOfFile(ctx context.Context, path string) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (f:File {path: $path})-[:IMPORTS]->(t) RETURN t.path AS path ORDER BY t.path`,
		map[string]any{"path": path})
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: listing imports of %s failed: %v", path, err)
		return nil
	}
	return stringColumn(rows, "path")
}

func (e *Engine) callersOf(ctx context.Context, qualifiedName string) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (caller:Symbol)-[:CALLS]->(s:Symbol {qualified_name: $qn}) RETURN caller.qualified_name AS qn ORDER BY caller.qualified_name`,
		map[string]any{"qn": qualifiedName})
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: listing callers of %s failed: %v", qualifiedName, err)
		return nil
	}
	return stringColumn(rows, "qn")
}

// related surfaces symbols reachable within two hops, for the
// "related" navigation bucket.
func (e *Engine) related(ctx context.Context, qualifiedName string) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (s:Symbol {qualified_name: $qn})-[*1..2]-(r:Symbol) RETURN DISTINCT r.qualified_name AS qn LIMIT 20`,
		map[string]any{"qn": qualifiedName})
	if err != nil {
		logging.Warnf(logging.CategoryTraversal, "traversal: related lookup for %s failed: %v", qualifiedName, err)
		return nil
	}
	return stringColumn(rows, "qn")
}

func callees(sym types.Symbol) []string {
	seen := make(map[string]struct{}, len(sym.Calls))
	var out []string
	for _, c := range sym.Calls {
		if _, ok := seen[c.CalleeName]; ok {
			continue
		}
		seen[c.CalleeName] = struct{}{}
		out = append(out, c.CalleeName)
	}
	sort.Strings(out)
	return out
}

func stringColumn(rows []map[string]any, col string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[col].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// approxSize estimates the rendered byte size of a result, summing the
// summary and every list's total string length.
func approxSize(r *TraversalContextResult) int {
	n := len(r.Summary)
	for _, list := range [][]string{r.Files, r.Symbols, r.Callers, r.Callees, r.Imports, r.Related} {
		for _, s := range list {
			n += len(s) + 1
		}
	}
	return n
}

// applyBudget truncates lists (never the summary) until the result fits
// within budget. Each pass drops the last entry of every non-empty list
// in the order related, callers, callees, imports, symbols, files,
// stopping as soon as the result fits.
func applyBudget(r *TraversalContextResult, budget int) {
	if budget <= 0 {
		return
	}
	order := []*[]string{&r.Related, &r.Callers, &r.Callees, &r.Imports, &r.Symbols, &r.Files}
	for approxSize(r) > budget {
		trimmed := false
		for _, list := range order {
			if len(*list) == 0 {
				continue
			}
			*list = (*list)[:len(*list)-1]
			r.Truncated = true
			trimmed = true
			if approxSize(r) <= budget {
				break
			}
		}
		if !trimmed {
			break // nothing left to trim; summary always survives
		}
	}
}

// SweepExpired drops expired sessions from memory and returns how many
// were dropped.
func (e *Engine) SweepExpired() int {
	return e.store.sweepExpired()
}

// ActiveSessions reports the number of live, non-expired sessions, for
// the Context Manifold's navigational dimension.
func (e *Engine) ActiveSessions() int {
	return e.store.active()
}
