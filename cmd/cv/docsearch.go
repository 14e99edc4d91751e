package main

import (
	"context"
	"fmt"

	"github.com/contextvault/cv/internal/embedding"
	"github.com/contextvault/cv/internal/vectorstore"
)

// docSearcher adapts the vector store's generic Search to the
// dispatcher's narrow DocSearcher interface, restricted to the
// document_chunks collection (spec.md §4.9 "docs" tool).
type docSearcher struct {
	repoID string
	vs     vectorstore.Store
	embed  embedding.Engine
}

func (d *docSearcher) Search(ctx context.Context, repoID, query string, limit int) ([]vectorstore.SearchResult, error) {
	vec, err := d.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return d.vs.Search(ctx, repoID, vectorstore.CollectionDocumentChunks, vec, limit, nil)
}
