package summarizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

type fakeVectorStore struct {
	points map[string]vectorstore.Point // id -> point, CollectionSummaries only
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]vectorstore.Point)}
}

func (f *fakeVectorStore) EnsureCollections(ctx context.Context, repoID string, dims int) error {
	return nil
}
func (f *fakeVectorStore) Upsert(ctx context.Context, repoID string, collection vectorstore.Collection, points []vectorstore.Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, repoID string, collection vectorstore.Collection, vector []float32, limit int, filter map[string]any) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) SearchByLevel(ctx context.Context, repoID string, level int, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) SearchHierarchical(ctx context.Context, repoID string, vector []float32, startLevel, endLevel, limit int) (map[int][]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) GetSummary(ctx context.Context, repoID string, id string) (*vectorstore.Point, error) {
	p, ok := f.points[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
func (f *fakeVectorStore) GetSummaryChildren(ctx context.Context, repoID string, id string) ([]vectorstore.Point, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeletePoints(ctx context.Context, repoID string, collection vectorstore.Collection, ids []string) error {
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}
func (f *fakeVectorStore) DeleteByPayloadMatch(ctx context.Context, repoID string, collection vectorstore.Collection, key, value string) error {
	for id, p := range f.points {
		if v, _ := p.Payload[key].(string); v == value {
			delete(f.points, id)
		}
	}
	return nil
}
func (f *fakeVectorStore) Close() error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 2}, nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = fakeEmbedder{}.Embed(ctx, t)
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 3 }
func (fakeEmbedder) Name() string    { return "fake" }

type fakeGenerator struct{ calls int }

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	return "a concise summary", nil
}
func (g *fakeGenerator) Name() string { return "fake-gen" }

func TestSummarizeSymbolSkipsUnchangedContent(t *testing.T) {
	vs := newFakeVectorStore()
	gen := &fakeGenerator{}
	eng := NewEngine("repo1", vs, fakeEmbedder{}, gen)

	sym := types.Symbol{QualifiedName: "a.go:main", Name: "main", Kind: types.KindFunction, Signature: "func main()"}

	_, err := eng.SummarizeSymbol(context.Background(), sym, "fmt.Println(\"hi\")", fileID("a.go"))
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	_, err = eng.SummarizeSymbol(context.Background(), sym, "fmt.Println(\"hi\")", fileID("a.go"))
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls, "unchanged content must not regenerate")
}

func TestSummarizeSymbolRegeneratesOnChange(t *testing.T) {
	vs := newFakeVectorStore()
	gen := &fakeGenerator{}
	eng := NewEngine("repo1", vs, fakeEmbedder{}, gen)

	sym := types.Symbol{QualifiedName: "a.go:main", Name: "main", Kind: types.KindFunction, Signature: "func main()"}

	_, err := eng.SummarizeSymbol(context.Background(), sym, "body v1", fileID("a.go"))
	require.NoError(t, err)
	_, err = eng.SummarizeSymbol(context.Background(), sym, "body v2", fileID("a.go"))
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
}

func TestSummarizeFileTracksChildren(t *testing.T) {
	vs := newFakeVectorStore()
	gen := &fakeGenerator{}
	eng := NewEngine("repo1", vs, fakeEmbedder{}, gen)

	sym := types.Symbol{QualifiedName: "a.go:main", Name: "main", Kind: types.KindFunction, Signature: "func main()"}
	symSummary, err := eng.SummarizeSymbol(context.Background(), sym, "body", fileID("a.go"))
	require.NoError(t, err)

	file := types.File{Path: "a.go", Language: "go"}
	fileSummary, err := eng.SummarizeFile(context.Background(), file, []string{"fmt"}, []types.HierarchicalSummary{*symSummary}, directoryID("."))
	require.NoError(t, err)

	assert.Equal(t, LevelFile, fileSummary.Level)
	assert.Contains(t, fileSummary.Children, symSummary.ID)
}

func TestDeleteForPathRemovesChildSummaries(t *testing.T) {
	vs := newFakeVectorStore()
	gen := &fakeGenerator{}
	eng := NewEngine("repo1", vs, fakeEmbedder{}, gen)

	sym := types.Symbol{QualifiedName: "a.go:main", Name: "main", Kind: types.KindFunction, Signature: "func main()"}
	_, err := eng.SummarizeSymbol(context.Background(), sym, "body", fileID("a.go"))
	require.NoError(t, err)

	require.NoError(t, eng.DeleteForPath(context.Background(), "a.go"))

	pt, err := vs.GetSummary(context.Background(), "repo1", symbolID("a.go:main"))
	require.NoError(t, err)
	assert.Nil(t, pt)
}
