package manifold

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/vectorstore"
)

// SessionCounter reports how many traversal sessions are currently
// active; satisfied by *traversal.Engine without importing it directly
// (traversal has no reason to depend on manifold).
type SessionCounter interface {
	ActiveSessions() int
}

// PRDClient is the optional external requirements-document source for
// the requirements dimension. A nil client makes the dimension inert
// rather than erroring, per spec.md's "(optional)" signal source.
type PRDClient interface {
	FetchRequirements(ctx context.Context, query string) ([]string, error)
}

// --- 1. structural ----------------------------------------------------

type StructuralDimension struct{ G graph.Store }

func (d *StructuralDimension) Name() string { return "structural" }

func (d *StructuralDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	total := 0
	for _, c := range state.Counts {
		total += c
	}
	if total == 0 {
		return 0.3, nil
	}
	for _, p := range state.Pointers {
		if query != "" && strings.Contains(strings.ToLower(p), strings.ToLower(query)) {
			return 1.0, nil
		}
	}
	return 0.5, nil
}

func (d *StructuralDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	text := fmt.Sprintf("files=%d symbols=%d edges=%d modules=%d; hubs: %s",
		state.Counts["files"], state.Counts["symbols"], state.Counts["edges"], state.Counts["modules"],
		strings.Join(state.Pointers, ", "))
	return Fragment{Refs: state.Pointers, Text: truncate(text, budget)}, nil
}

// --- 2. semantic --------------------------------------------------------

type SemanticDimension struct {
	VS     vectorstore.Store
	Embed  embedding.Engine
	RepoID string
}

func (d *SemanticDimension) Name() string { return "semantic" }

func (d *SemanticDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	if query == "" || d.Embed == nil || d.VS == nil {
		return 0, nil
	}
	vec, err := d.Embed.Embed(ctx, query)
	if err != nil {
		return 0, cverr.Wrap(cverr.KindEmbedding, "manifold.semantic.Score", err)
	}
	results, err := d.VS.Search(ctx, d.RepoID, vectorstore.CollectionCodeChunks, vec, 1, nil)
	if err != nil || len(results) == 0 {
		return 0, nil
	}
	score := float64(results[0].Score)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func (d *SemanticDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	if query == "" || d.Embed == nil || d.VS == nil {
		return Fragment{Text: ""}, nil
	}
	vec, err := d.Embed.Embed(ctx, query)
	if err != nil {
		return Fragment{}, cverr.Wrap(cverr.KindEmbedding, "manifold.semantic.Render", err)
	}
	results, err := d.VS.Search(ctx, d.RepoID, vectorstore.CollectionCodeChunks, vec, 5, nil)
	if err != nil {
		return Fragment{}, cverr.Wrap(cverr.KindVector, "manifold.semantic.Render", err)
	}
	var sb strings.Builder
	var refs []string
	for _, r := range results {
		if text, ok := r.Payload["text"].(string); ok {
			sb.WriteString(text)
			sb.WriteString("\n---\n")
		}
		refs = append(refs, r.ID)
	}
	return Fragment{Refs: refs, Text: truncate(sb.String(), budget)}, nil
}

// --- 3. temporal ---------------------------------------------------------

type TemporalDimension struct{ Root string }

func (d *TemporalDimension) Name() string { return "temporal" }

func (d *TemporalDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	if len(state.Pointers) == 0 {
		return 0.2, nil
	}
	if query == "" {
		return 0.4, nil
	}
	for _, p := range state.Pointers {
		if strings.Contains(strings.ToLower(p), strings.ToLower(query)) {
			return 0.9, nil
		}
	}
	return 0.4, nil
}

func (d *TemporalDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	text := fmt.Sprintf("%d recent commits; hot files: %s", state.Counts["commits"], strings.Join(state.Pointers, ", "))
	return Fragment{Refs: state.Pointers, Text: truncate(text, budget)}, nil
}

// --- 4. requirements -------------------------------------------------------

type RequirementsDimension struct{ Client PRDClient }

func (d *RequirementsDimension) Name() string { return "requirements" }

func (d *RequirementsDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	if d.Client == nil {
		return 0, nil
	}
	reqs, err := d.Client.FetchRequirements(ctx, query)
	if err != nil || len(reqs) == 0 {
		return 0, nil
	}
	return 0.6, nil
}

func (d *RequirementsDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	if d.Client == nil {
		return Fragment{Text: ""}, nil
	}
	reqs, err := d.Client.FetchRequirements(ctx, query)
	if err != nil {
		return Fragment{}, cverr.Wrap(cverr.KindIO, "manifold.requirements.Render", err)
	}
	return Fragment{Text: truncate(strings.Join(reqs, "\n"), budget)}, nil
}

// --- 5. summary --------------------------------------------------------

type SummaryDimension struct{}

func (d *SummaryDimension) Name() string { return "summary" }

func (d *SummaryDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	total := 0
	for _, c := range state.Counts {
		total += c
	}
	if total == 0 {
		return 0, nil
	}
	score := float64(total) / 200.0
	if score > 1 {
		score = 1
	}
	return score, nil
}

func (d *SummaryDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	text := fmt.Sprintf("L1=%d L2=%d L3=%d L4=%d", state.Counts["L1"], state.Counts["L2"], state.Counts["L3"], state.Counts["L4"])
	return Fragment{Refs: state.Pointers, Text: truncate(text, budget)}, nil
}

// --- 6. navigational -----------------------------------------------------

type NavigationalDimension struct{ Sessions SessionCounter }

func (d *NavigationalDimension) Name() string { return "navigational" }

func (d *NavigationalDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	if d.Sessions == nil {
		return 0, nil
	}
	n := float64(d.Sessions.ActiveSessions())
	score := n / 5.0
	if score > 1 {
		score = 1
	}
	return score, nil
}

func (d *NavigationalDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	n := 0
	if d.Sessions != nil {
		n = d.Sessions.ActiveSessions()
	}
	return Fragment{Text: truncate(fmt.Sprintf("%d active traversal sessions", n), budget)}, nil
}

// --- 7. session (git working tree) ----------------------------------------

type SessionDimension struct{ Root string }

func (d *SessionDimension) Name() string { return "session" }

func (d *SessionDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	modified, staged, untracked := workingTreeStatus(ctx, d.Root)
	if len(modified)+len(staged)+len(untracked) == 0 {
		return 0.1, nil
	}
	return 0.8, nil
}

func (d *SessionDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	modified, staged, untracked := workingTreeStatus(ctx, d.Root)
	text := fmt.Sprintf("modified: %s; staged: %s; untracked: %s",
		strings.Join(modified, ", "), strings.Join(staged, ", "), strings.Join(untracked, ", "))
	return Fragment{Refs: append(append(modified, staged...), untracked...), Text: truncate(text, budget)}, nil
}

// --- 8. intent -------------------------------------------------------------

type IntentDimension struct{ Root string }

func (d *IntentDimension) Name() string { return "intent" }

func (d *IntentDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	branch := currentBranch(ctx, d.Root)
	if branch == "" {
		return 0.1, nil
	}
	if query != "" && strings.Contains(strings.ToLower(branch), strings.ToLower(query)) {
		return 0.9, nil
	}
	return 0.3, nil
}

func (d *IntentDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	branch := currentBranch(ctx, d.Root)
	commits := recentCommits(ctx, d.Root, 10)
	types := make(map[string]struct{})
	for _, c := range commits {
		if t := conventionalType(c.Message); t != "" {
			types[t] = struct{}{}
		}
	}
	var kinds []string
	for t := range types {
		kinds = append(kinds, t)
	}
	sort.Strings(kinds)
	text := fmt.Sprintf("branch=%s recent_types=%s", branch, strings.Join(kinds, ","))
	return Fragment{Text: truncate(text, budget)}, nil
}

// --- 9. impact ---------------------------------------------------------

type ImpactDimension struct {
	G      graph.Store
	Root   string
	RepoID string
}

func (d *ImpactDimension) Name() string { return "impact" }

func (d *ImpactDimension) changedSymbols(ctx context.Context) ([]string, int) {
	modified, staged, _ := workingTreeStatus(ctx, d.Root)
	changedFiles := append(append([]string{}, modified...), staged...)
	if len(changedFiles) == 0 {
		return nil, 0
	}
	var symbols []string
	fanOut := 0
	for _, f := range changedFiles {
		rows, err := d.G.Query(ctx, d.RepoID,
			`MATCH (f:File {path: $path})-[:DEFINES]->(s:Symbol) RETURN s.qualified_name AS qn`,
			map[string]any{"path": f})
		if err != nil {
			continue
		}
		for _, row := range rows {
			qn, _ := row["qn"].(string)
			if qn == "" {
				continue
			}
			symbols = append(symbols, qn)
			callers, err := d.G.Query(ctx, d.RepoID,
				`MATCH (caller:Symbol)-[:CALLS]->(s:Symbol {qualified_name: $qn}) RETURN count(caller) AS c`,
				map[string]any{"qn": qn})
			if err == nil && len(callers) > 0 {
				if c, ok := callers[0]["c"].(int64); ok {
					fanOut += int(c)
				}
			}
		}
	}
	return symbols, fanOut
}

func riskBucket(fanOut int) string {
	switch {
	case fanOut >= 10:
		return "high"
	case fanOut >= 3:
		return "medium"
	default:
		return "low"
	}
}

func (d *ImpactDimension) Score(ctx context.Context, query string, state DimensionState) (float64, error) {
	_, fanOut := d.changedSymbols(ctx)
	switch riskBucket(fanOut) {
	case "high":
		return 0.9, nil
	case "medium":
		return 0.5, nil
	default:
		return 0.2, nil
	}
}

func (d *ImpactDimension) Render(ctx context.Context, query string, state DimensionState, budget int) (Fragment, error) {
	symbols, fanOut := d.changedSymbols(ctx)
	text := fmt.Sprintf("changed symbols: %s; risk=%s (fan-out=%d)", strings.Join(symbols, ", "), riskBucket(fanOut), fanOut)
	return Fragment{Refs: symbols, Text: truncate(text, budget)}, nil
}
