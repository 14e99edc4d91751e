// Package summarizer builds the four-level hierarchical summary tree
// (symbol -> file -> directory -> repo) that backs the Vector Store's
// summaries collection and the Context Manifold's summary dimension.
// Grounded conceptually on the teacher's internal/world/holographic.go
// and cartographer.go (package/directory aggregation passes), rebuilt
// bottom-up around cv's fixed four levels and content-hash skip rather
// than the teacher's live AST-walk-on-every-request model.
package summarizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/contextvault/cv/internal/aiclient"
	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

// GraphQuerier is the narrow slice of graph.Store the summarizer needs
// for its directory/repo rollup pass, kept separate so this package
// never depends on the graph package's write surface.
type GraphQuerier interface {
	Query(ctx context.Context, repoID string, cypher string, params map[string]any) ([]map[string]any, error)
}

// Level constants mirror spec.md's "0 = raw chunk, 1 = symbol, 2 =
// file, 3 = directory, 4 = repo" scale; summarizer only ever produces
// levels 1-4 (level 0 chunks live in the code_chunks collection).
const (
	LevelSymbol    = 1
	LevelFile      = 2
	LevelDirectory = 3
	LevelRepo      = 4
)

// Engine generates and stores hierarchical summaries for one repo.
type Engine struct {
	repoID string
	vs     vectorstore.Store
	embed  embedding.Engine
	gen    aiclient.Generator
}

// NewEngine builds a summarizer bound to one repo's vector store.
func NewEngine(repoID string, vs vectorstore.Store, embed embedding.Engine, gen aiclient.Generator) *Engine {
	return &Engine{repoID: repoID, vs: vs, embed: embed, gen: gen}
}

func contentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func symbolID(qualifiedName string) string    { return "L1:" + qualifiedName }
func fileID(path string) string               { return "L2:" + path }
func directoryID(dirPath string) string        { return "L3:" + dirPath }
func repoID(repoID string) string              { return "L4:" + repoID }

// existing fetches a prior summary at id and reports whether its
// stored content_hash still matches newHash, meaning regeneration can
// be skipped.
func (e *Engine) existing(ctx context.Context, id, newHash string) (*types.HierarchicalSummary, bool) {
	pt, err := e.vs.GetSummary(ctx, e.repoID, id)
	if err != nil || pt == nil {
		return nil, false
	}
	hs := pointToSummary(*pt)
	return &hs, hs.ContentHash == newHash
}

func pointToSummary(pt vectorstore.Point) types.HierarchicalSummary {
	hs := types.HierarchicalSummary{ID: pt.ID}
	if v, ok := pt.Payload["level"].(int); ok {
		hs.Level = v
	} else if v, ok := pt.Payload["level"].(float64); ok {
		hs.Level = int(v)
	}
	if v, ok := pt.Payload["parent"].(string); ok {
		hs.Parent = v
	}
	if v, ok := pt.Payload["summary"].(string); ok {
		hs.Summary = v
	}
	if v, ok := pt.Payload["content_hash"].(string); ok {
		hs.ContentHash = v
	}
	if v, ok := pt.Payload["children"].(string); ok && v != "" {
		hs.Children = strings.Split(v, ",")
	}
	if v, ok := pt.Payload["keywords"].(string); ok && v != "" {
		hs.Keywords = strings.Split(v, ",")
	}
	return hs
}

func (e *Engine) store(ctx context.Context, hs types.HierarchicalSummary) error {
	vec, err := e.embed.Embed(ctx, hs.Summary)
	if err != nil {
		return cverr.Wrap(cverr.KindEmbedding, "summarizer.store", err)
	}
	payload := map[string]any{
		"level":        hs.Level,
		"parent":       hs.Parent,
		"children":     strings.Join(hs.Children, ","),
		"summary":      hs.Summary,
		"keywords":     strings.Join(hs.Keywords, ","),
		"content_hash": hs.ContentHash,
	}
	return e.vs.Upsert(ctx, e.repoID, vectorstore.CollectionSummaries, []vectorstore.Point{
		{ID: hs.ID, Vector: vec, Payload: payload},
	})
}

// SummarizeSymbol generates an L1 summary for one function/method/
// class/interface symbol. Input is the signature, docstring, and a
// body excerpt; unchanged content (by hash) is skipped.
func (e *Engine) SummarizeSymbol(ctx context.Context, sym types.Symbol, bodyExcerpt string, parentFileID string) (*types.HierarchicalSummary, error) {
	id := symbolID(sym.QualifiedName)
	hash := contentHash(sym.Signature, sym.Docstring, bodyExcerpt)

	if prior, unchanged := e.existing(ctx, id, hash); unchanged {
		return prior, nil
	}

	prompt := fmt.Sprintf("Summarize this %s in one or two sentences for a code search index.\n\nSignature: %s\nDocstring: %s\nBody:\n%s",
		sym.Kind, sym.Signature, sym.Docstring, bodyExcerpt)
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "summarizer.SummarizeSymbol", err)
	}

	hs := types.HierarchicalSummary{
		ID:          id,
		Level:       LevelSymbol,
		Parent:      parentFileID,
		Summary:     strings.TrimSpace(text),
		Keywords:    extractKeywords(sym.Name, sym.Signature),
		ContentHash: hash,
	}
	if err := e.store(ctx, hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

// SummarizeFile aggregates a file's L1 symbol summaries plus its
// import list into an L2 summary, recording parent/child links.
func (e *Engine) SummarizeFile(ctx context.Context, file types.File, imports []string, symbolSummaries []types.HierarchicalSummary, parentDirID string) (*types.HierarchicalSummary, error) {
	id := fileID(file.Path)

	var sb strings.Builder
	children := make([]string, 0, len(symbolSummaries))
	for _, s := range symbolSummaries {
		sb.WriteString(s.Summary)
		sb.WriteString("\n")
		children = append(children, s.ID)
	}
	hash := contentHash(file.Path, strings.Join(imports, ","), sb.String())

	if prior, unchanged := e.existing(ctx, id, hash); unchanged {
		return prior, nil
	}

	prompt := fmt.Sprintf("Summarize the purpose of file %s in 2-3 sentences, given its symbols and imports.\n\nImports: %s\nSymbol summaries:\n%s",
		file.Path, strings.Join(imports, ", "), sb.String())
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "summarizer.SummarizeFile", err)
	}

	hs := types.HierarchicalSummary{
		ID:          id,
		Level:       LevelFile,
		Parent:      parentDirID,
		Children:    children,
		Summary:     strings.TrimSpace(text),
		Keywords:    extractKeywords(file.Path),
		ContentHash: hash,
	}
	if err := e.store(ctx, hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

// SummarizeDirectory aggregates a directory's child L2 file summaries
// into an L3 summary. Computed bottom-up once every leaf file under
// the directory has completed its L2 pass.
func (e *Engine) SummarizeDirectory(ctx context.Context, dirPath string, childFileSummaries []types.HierarchicalSummary, parentDirID string) (*types.HierarchicalSummary, error) {
	id := directoryID(dirPath)

	var sb strings.Builder
	children := make([]string, 0, len(childFileSummaries))
	for _, s := range childFileSummaries {
		sb.WriteString(s.Summary)
		sb.WriteString("\n")
		children = append(children, s.ID)
	}
	hash := contentHash(dirPath, sb.String())

	if prior, unchanged := e.existing(ctx, id, hash); unchanged {
		return prior, nil
	}

	prompt := fmt.Sprintf("Summarize the role of directory %s in 2-3 sentences, given its files' summaries.\n\n%s", dirPath, sb.String())
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "summarizer.SummarizeDirectory", err)
	}

	hs := types.HierarchicalSummary{
		ID:          id,
		Level:       LevelDirectory,
		Parent:      parentDirID,
		Children:    children,
		Summary:     strings.TrimSpace(text),
		Keywords:    extractKeywords(dirPath),
		ContentHash: hash,
	}
	if err := e.store(ctx, hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

// SummarizeRepo regenerates the single L4 repo summary whenever any L3
// directory summary changed, or on explicit request.
func (e *Engine) SummarizeRepo(ctx context.Context, dirSummaries []types.HierarchicalSummary) (*types.HierarchicalSummary, error) {
	id := repoID(e.repoID)

	var sb strings.Builder
	children := make([]string, 0, len(dirSummaries))
	for _, s := range dirSummaries {
		sb.WriteString(s.Summary)
		sb.WriteString("\n")
		children = append(children, s.ID)
	}
	hash := contentHash(sb.String())

	if prior, unchanged := e.existing(ctx, id, hash); unchanged {
		return prior, nil
	}

	prompt := "Summarize the overall purpose of this repository in 3-4 sentences, given its top-level directory summaries.\n\n" + sb.String()
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindEmbedding, "summarizer.SummarizeRepo", err)
	}

	hs := types.HierarchicalSummary{
		ID:          id,
		Level:       LevelRepo,
		Children:    children,
		Summary:     strings.TrimSpace(text),
		ContentHash: hash,
	}
	if err := e.store(ctx, hs); err != nil {
		return nil, err
	}
	logging.Infof(logging.CategorySummary, "summarizer: regenerated repo summary for %s (%d directories)", e.repoID, len(dirSummaries))
	return &hs, nil
}

// SummarizeParsedFile drives the L1 symbol pass and the L2 file pass
// for one freshly-parsed file, called from the delta-sync sink right
// after a file's chunks are embedded. Symbol bodies come from the
// chunk whose range matches the symbol, falling back to the signature
// alone when no matching chunk was produced.
func (e *Engine) SummarizeParsedFile(ctx context.Context, file types.File, pf *parser.ParsedFile) (*types.HierarchicalSummary, error) {
	dirID := directoryID(path.Dir(file.Path))

	symSummaries := make([]types.HierarchicalSummary, 0, len(pf.Symbols))
	for _, sym := range pf.Symbols {
		body := sym.Signature
		for _, c := range pf.Chunks {
			if c.SymbolName == sym.QualifiedName {
				body = c.Text
				break
			}
		}
		hs, err := e.SummarizeSymbol(ctx, sym, body, fileID(file.Path))
		if err != nil {
			logging.Warnf(logging.CategorySummary, "summarizer: symbol %s: %v", sym.QualifiedName, err)
			continue
		}
		symSummaries = append(symSummaries, *hs)
	}

	imports := make([]string, 0, len(pf.Imports))
	for _, imp := range pf.Imports {
		imports = append(imports, imp.Source)
	}
	return e.SummarizeFile(ctx, file, imports, symSummaries, dirID)
}

// Rollup regenerates the L3 directory summaries for every module the
// graph knows about, then the single L4 repo summary, skipping any
// directory whose files produced no L2 summary yet. Intended to run
// once per sync tick, after every changed file has been summarized.
func (e *Engine) Rollup(ctx context.Context, g GraphQuerier) error {
	modules, err := g.Query(ctx, e.repoID, `MATCH (m:Module) RETURN m.path AS v ORDER BY v`, nil)
	if err != nil {
		return cverr.Wrap(cverr.KindGraph, "summarizer.Rollup", err)
	}

	var dirSummaries []types.HierarchicalSummary
	for _, row := range modules {
		modPath, _ := row["v"].(string)
		if modPath == "" {
			continue
		}
		files, err := g.Query(ctx, e.repoID, `MATCH (f:File {module: $target}) RETURN f.path AS v ORDER BY v`, map[string]any{"target": modPath})
		if err != nil {
			return cverr.Wrap(cverr.KindGraph, "summarizer.Rollup", err)
		}
		var fileSummaries []types.HierarchicalSummary
		for _, fr := range files {
			p, _ := fr["v"].(string)
			if p == "" {
				continue
			}
			if pt, err := e.vs.GetSummary(ctx, e.repoID, fileID(p)); err == nil && pt != nil {
				fileSummaries = append(fileSummaries, pointToSummary(*pt))
			}
		}
		if len(fileSummaries) == 0 {
			continue
		}
		ds, err := e.SummarizeDirectory(ctx, modPath, fileSummaries, "")
		if err != nil {
			logging.Warnf(logging.CategorySummary, "summarizer: directory %s: %v", modPath, err)
			continue
		}
		dirSummaries = append(dirSummaries, *ds)
	}

	if len(dirSummaries) == 0 {
		return nil
	}
	_, err = e.SummarizeRepo(ctx, dirSummaries)
	return err
}

// DeleteForPath removes the L1/L2 summaries tied to a deleted file's
// path, letting the next directory/repo pass regenerate clean of it.
func (e *Engine) DeleteForPath(ctx context.Context, path string) error {
	if err := e.vs.DeleteByPayloadMatch(ctx, e.repoID, vectorstore.CollectionSummaries, "parent", fileID(path)); err != nil {
		return err
	}
	return e.vs.DeletePoints(ctx, e.repoID, vectorstore.CollectionSummaries, []string{fileID(path)})
}

// extractKeywords is a lightweight keyword extractor: splits
// identifiers on common separators and keeps unique lowercase tokens.
// Good enough for the summaries collection's payload filter use case;
// real semantic matching goes through the embedding vector, not these.
func extractKeywords(parts ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range parts {
		for _, tok := range strings.FieldsFunc(p, func(r rune) bool {
			switch r {
			case '_', '.', '/', '(', ')', ' ', '-', ':':
				return true
			default:
				return false
			}
		}) {
			tok = strings.ToLower(tok)
			if tok == "" {
				continue
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
