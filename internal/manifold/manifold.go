package manifold

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/vectorstore"
)

// ContextResult is assemble()'s return value: one scored, budgeted
// fragment per dimension plus a rendering in the requested format.
type ContextResult struct {
	Query     string             `json:"query"`
	Format    string             `json:"format"`
	Fragments map[string]Fragment `json:"fragments"`
	Weights   map[string]float64 `json:"weights"`
	Scores    map[string]float64 `json:"scores"`
	Fallback  bool               `json:"fallback"`
	Rendered  string             `json:"-"`
}

// Engine owns the nine dimensions and the manifold's persisted state
// for one repo.
type Engine struct {
	repoID string
	root   string
	state  *stateStore
	dims   []Dimension

	g     graph.Store
	vs    vectorstore.Store
	embed embedding.Engine
}

// Deps bundles the engine's collaborators; Sessions and PRD are optional.
type Deps struct {
	RepoID   string
	Root     string
	Graph    graph.Store
	Vector   vectorstore.Store
	Embed    embedding.Engine
	Sessions SessionCounter
	PRD      PRDClient
}

// NewEngine wires the nine dimensions from deps.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		repoID: deps.RepoID,
		root:   deps.Root,
		state:  newStateStore(deps.Root),
		g:      deps.Graph,
		vs:     deps.Vector,
		embed:  deps.Embed,
	}
	e.dims = []Dimension{
		&StructuralDimension{G: deps.Graph},
		&SemanticDimension{VS: deps.Vector, Embed: deps.Embed, RepoID: deps.RepoID},
		&TemporalDimension{Root: deps.Root},
		&RequirementsDimension{Client: deps.PRD},
		&SummaryDimension{},
		&NavigationalDimension{Sessions: deps.Sessions},
		&SessionDimension{Root: deps.Root},
		&IntentDimension{Root: deps.Root},
		&ImpactDimension{G: deps.Graph, Root: deps.Root, RepoID: deps.RepoID},
	}
	return e
}

// Refresh recomputes the persisted per-dimension state records that
// Score/Render consume. summaryCounts (L1..L4) comes from the caller
// because only the sync pipeline that ran the Hierarchical Summarizer
// knows how many summaries it actually wrote this tick.
func (e *Engine) Refresh(ctx context.Context, summaryCounts map[string]int) error {
	now := time.Now()
	st := &ManifoldState{Dimensions: make(map[string]DimensionState)}

	stats, err := e.g.GetStats(ctx, e.repoID)
	if err != nil {
		logging.Warnf(logging.CategoryManifold, "manifold: refresh structural stats failed: %v", err)
	}
	hubs := e.hubSymbols(ctx)
	st.Dimensions["structural"] = DimensionState{
		Counts: map[string]int{
			"files": stats.FileCount, "symbols": stats.SymbolCount,
			"edges": stats.EdgeCount, "modules": stats.ModuleCount,
		},
		Pointers:    hubs,
		LastUpdated: now,
	}

	commits := recentCommits(ctx, e.root, 20)
	st.Dimensions["temporal"] = DimensionState{
		Counts:      map[string]int{"commits": len(commits)},
		Pointers:    hotFiles(commits, 10),
		LastUpdated: now,
	}

	st.Dimensions["summary"] = DimensionState{Counts: summaryCounts, LastUpdated: now}

	// The remaining dimensions (semantic, requirements, navigational,
	// session, intent, impact) compute their signal live from the
	// stores/git at Score/Render time; their state entries only carry
	// a freshness stamp so Load() can report the manifold as available.
	for _, name := range []string{"semantic", "requirements", "navigational", "session", "intent", "impact"} {
		st.Dimensions[name] = DimensionState{LastUpdated: now}
	}

	return e.state.Save(st)
}

func (e *Engine) hubSymbols(ctx context.Context) []string {
	rows, err := e.g.Query(ctx, e.repoID,
		`MATCH (caller:Symbol)-[:CALLS]->(s:Symbol) RETURN s.qualified_name AS qn, count(caller) AS c ORDER BY c DESC LIMIT 10`,
		nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if qn, ok := row["qn"].(string); ok {
			out = append(out, qn)
		}
	}
	return out
}

// Assemble computes scores, allocates the byte budget proportional to
// weight*score, renders each dimension, and returns the combined
// result in the requested format ("xml" | "markdown" | "json").
func (e *Engine) Assemble(ctx context.Context, query string, budget int, weights map[string]float64, format string) (*ContextResult, error) {
	st, ok, err := e.state.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.fallbackToSemanticSearch(ctx, query, budget, format)
	}
	if weights == nil {
		weights = DefaultWeights()
	}

	type scored struct {
		name  string
		score float64
	}
	scoreCh := make(chan scored, len(e.dims))
	var sg errgroup.Group
	for _, dim := range e.dims {
		dim := dim
		sg.Go(func() error {
			state := st.Dimensions[dim.Name()]
			score, err := dim.Score(ctx, query, state)
			if err != nil {
				logging.Warnf(logging.CategoryManifold, "manifold: %s dimension scoring failed: %v", dim.Name(), err)
				score = 0
			}
			scoreCh <- scored{name: dim.Name(), score: score}
			return nil
		})
	}
	_ = sg.Wait()
	close(scoreCh)

	scores := make(map[string]float64, len(e.dims))
	for s := range scoreCh {
		scores[s.name] = s.score
	}

	var total float64
	for name, w := range weights {
		total += w * scores[name]
	}
	if total == 0 {
		total = 1
	}

	type rendered struct {
		name string
		frag Fragment
	}
	fragCh := make(chan rendered, len(e.dims))
	var rg errgroup.Group
	for _, dim := range e.dims {
		dim := dim
		dimBudget := 0
		if budget > 0 {
			dimBudget = int(float64(budget) * (weights[dim.Name()] * scores[dim.Name()]) / total)
		}
		rg.Go(func() error {
			state := st.Dimensions[dim.Name()]
			frag, err := dim.Render(ctx, query, state, dimBudget)
			if err != nil {
				logging.Warnf(logging.CategoryManifold, "manifold: %s dimension render failed: %v", dim.Name(), err)
				frag = Fragment{}
			}
			fragCh <- rendered{name: dim.Name(), frag: frag}
			return nil
		})
	}
	_ = rg.Wait()
	close(fragCh)

	fragments := make(map[string]Fragment, len(e.dims))
	for r := range fragCh {
		fragments[r.name] = r.frag
	}

	result := &ContextResult{
		Query:     query,
		Format:    format,
		Fragments: fragments,
		Weights:   weights,
		Scores:    scores,
	}
	result.Rendered = render(result, format)
	return result, nil
}

// fallbackToSemanticSearch is the documented non-error path taken when
// the manifold state file is missing: pure semantic search with
// metadata.fallback = true.
func (e *Engine) fallbackToSemanticSearch(ctx context.Context, query string, budget int, format string) (*ContextResult, error) {
	logging.Infof(logging.CategoryManifold, "manifold: state missing, falling back to semantic search for %q", query)
	result := &ContextResult{Query: query, Format: format, Fallback: true, Fragments: map[string]Fragment{}}

	if e.embed == nil || e.vs == nil || query == "" {
		result.Rendered = render(result, format)
		return result, nil
	}
	vec, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "manifold.fallback", err)
	}
	hits, err := e.vs.Search(ctx, e.repoID, vectorstore.CollectionCodeChunks, vec, 10, nil)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindVector, "manifold.fallback", err)
	}
	var sb strings.Builder
	var refs []string
	for _, h := range hits {
		if text, ok := h.Payload["text"].(string); ok {
			sb.WriteString(text)
			sb.WriteString("\n---\n")
		}
		refs = append(refs, h.ID)
	}
	result.Fragments["semantic"] = Fragment{Refs: refs, Text: truncate(sb.String(), budget)}
	result.Rendered = render(result, format)
	return result, nil
}

func render(r *ContextResult, format string) string {
	switch format {
	case "json":
		data, _ := json.MarshalIndent(r, "", "  ")
		return string(data)
	case "xml":
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("<context query=%q fallback=%q>\n", r.Query, fmt.Sprint(r.Fallback)))
		for name, frag := range r.Fragments {
			sb.WriteString(fmt.Sprintf("  <dimension name=%q score=%q>\n", name, fmt.Sprintf("%.2f", r.Scores[name])))
			sb.WriteString("    " + frag.Text + "\n")
			sb.WriteString("  </dimension>\n")
		}
		sb.WriteString("</context>")
		return sb.String()
	default: // markdown
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# Context: %s\n\n", r.Query))
		if r.Fallback {
			sb.WriteString("_fallback: pure semantic search_\n\n")
		}
		for name, frag := range r.Fragments {
			sb.WriteString(fmt.Sprintf("## %s (score %.2f)\n\n%s\n\n", name, r.Scores[name], frag.Text))
		}
		return sb.String()
	}
}
