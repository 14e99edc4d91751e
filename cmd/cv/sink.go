package main

import (
	"context"
	"fmt"

	"github.com/contextvault/cv/internal/deltasync"
	"github.com/contextvault/cv/internal/embedcache"
	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/summarizer"
	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

// multiSink is the concrete deltasync.Sink: it fans one parsed file or
// document out to the graph store, the vector store (via the embedding
// cache, so repeated chunk text across files never re-embeds), and the
// hierarchical summarizer, grounded on the teacher's pattern of a single
// sync tick writing to several world-model stores in sequence (parse ->
// graph upsert -> vector upsert -> summarize, per spec.md §5's
// within-a-path ordering guarantee). sum may be nil, in which case
// summarization is skipped (e.g. no AI generator configured).
type multiSink struct {
	repoID string
	g      graph.Store
	vs     vectorstore.Store
	embed  embedding.Engine
	cache  *embedcache.Cache
	sum    *summarizer.Engine
}

func (s *multiSink) UpsertFile(ctx context.Context, repoID string, file types.File, pf *parser.ParsedFile, force bool) error {
	if err := s.g.UpsertFile(ctx, repoID, file); err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	if err := s.g.UpsertSymbols(ctx, repoID, file.Path, pf.Symbols); err != nil {
		return fmt.Errorf("upsert symbols: %w", err)
	}
	for _, imp := range pf.Imports {
		if err := s.g.CreateEdge(ctx, repoID, types.Edge{Type: types.EdgeImports, From: file.Path, To: imp.Source}); err != nil {
			logging.Warnf(logging.CategorySync, "sync: import edge %s -> %s failed: %v", file.Path, imp.Source, err)
		}
	}
	// CALLS edges are created by UpsertSymbols itself (one MERGE per
	// call-site, including the unresolved-callee placeholder); creating
	// them again here would just be a second, redundant write.

	if len(pf.Chunks) == 0 {
		return nil
	}
	texts := make([]string, len(pf.Chunks))
	for i, c := range pf.Chunks {
		texts[i] = c.Text
	}
	compute := func(ctx context.Context, missing []string) ([][]float32, error) {
		return s.embed.EmbedBatch(ctx, missing)
	}
	var vecs [][]float32
	var err error
	if force {
		vecs, err = s.cache.GetOrComputeForce(ctx, texts, s.embed.Name(), compute)
	} else {
		vecs, err = s.cache.GetOrCompute(ctx, texts, s.embed.Name(), compute)
	}
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	points := make([]vectorstore.Point, len(pf.Chunks))
	for i, c := range pf.Chunks {
		points[i] = vectorstore.Point{
			ID:     c.ID,
			Vector: vecs[i],
			Payload: map[string]any{
				"text":        c.Text,
				"file":        c.File,
				"start_line":  c.StartLine,
				"end_line":    c.EndLine,
				"symbol_name": c.SymbolName,
			},
		}
	}
	if err := s.vs.Upsert(ctx, repoID, vectorstore.CollectionCodeChunks, points); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	if s.sum != nil {
		if _, err := s.sum.SummarizeParsedFile(ctx, file, pf); err != nil {
			logging.Warnf(logging.CategorySummary, "sync: summarize %s failed: %v", file.Path, err)
		}
	}
	return nil
}

func (s *multiSink) UpsertDocument(ctx context.Context, repoID string, doc *parser.ParsedDocument, force bool) error {
	gdoc := types.Document{
		Path:         doc.Path,
		DocumentType: doc.DocumentType,
		Status:       types.StatusActive,
		Frontmatter:  doc.Frontmatter,
		CustomFields: doc.CustomFields,
		Headings:     doc.Headings,
		Links:        doc.Links,
		Sections:     doc.Sections,
	}
	if err := s.g.UpsertDocument(ctx, repoID, gdoc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	var texts []string
	var ids []string
	for _, sec := range doc.Sections {
		for _, chunk := range sec.Chunks {
			texts = append(texts, chunk.Text)
			ids = append(ids, chunk.ID)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	compute := func(ctx context.Context, missing []string) ([][]float32, error) {
		return s.embed.EmbedBatch(ctx, missing)
	}
	var vecs [][]float32
	var err error
	if force {
		vecs, err = s.cache.GetOrComputeForce(ctx, texts, s.embed.Name(), compute)
	} else {
		vecs, err = s.cache.GetOrCompute(ctx, texts, s.embed.Name(), compute)
	}
	if err != nil {
		return fmt.Errorf("embed document chunks: %w", err)
	}
	points := make([]vectorstore.Point, len(texts))
	for i := range texts {
		points[i] = vectorstore.Point{ID: ids[i], Vector: vecs[i], Payload: map[string]any{"text": texts[i], "path": doc.Path}}
	}
	return s.vs.Upsert(ctx, repoID, vectorstore.CollectionDocumentChunks, points)
}

// UpsertCommits ingests each commit as a Commit node plus one MODIFIES
// edge per file it touched. Symbol-level TOUCHES edges are intentionally
// not created here — see DESIGN.md.
func (s *multiSink) UpsertCommits(ctx context.Context, repoID string, records []deltasync.CommitRecord) error {
	for _, rec := range records {
		if err := s.g.UpsertCommit(ctx, repoID, rec.Commit); err != nil {
			logging.Warnf(logging.CategorySync, "sync: upsert commit %s failed: %v", rec.Commit.SHA, err)
			continue
		}
		for _, touch := range rec.Files {
			edge := types.Edge{
				Type: types.EdgeModifies,
				From: rec.Commit.SHA,
				To:   touch.Path,
				Properties: map[string]any{
					"change_type": touch.ChangeType,
					"insertions":  touch.Insertions,
					"deletions":   touch.Deletions,
				},
			}
			if err := s.g.CreateEdge(ctx, repoID, edge); err != nil {
				logging.Warnf(logging.CategorySync, "sync: modifies edge %s -> %s failed: %v", rec.Commit.SHA, touch.Path, err)
			}
		}
	}
	return nil
}

func (s *multiSink) DeleteFile(ctx context.Context, repoID string, path string) error {
	if err := s.g.DeleteFile(ctx, repoID, path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if err := s.vs.DeleteByPayloadMatch(ctx, repoID, vectorstore.CollectionCodeChunks, "file", path); err != nil {
		logging.Warnf(logging.CategorySync, "sync: vector cleanup for %s failed: %v", path, err)
	}
	if s.sum != nil {
		if err := s.sum.DeleteForPath(ctx, path); err != nil {
			logging.Warnf(logging.CategorySummary, "sync: summary cleanup for %s failed: %v", path, err)
		}
	}
	return nil
}
