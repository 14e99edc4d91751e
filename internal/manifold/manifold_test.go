package manifold

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

type fakeGraphStore struct{}

func (f *fakeGraphStore) UpsertFile(ctx context.Context, repoID string, file types.File) error {
	return nil
}
func (f *fakeGraphStore) UpsertSymbols(ctx context.Context, repoID, file string, symbols []types.Symbol) error {
	return nil
}
func (f *fakeGraphStore) UpsertModule(ctx context.Context, repoID string, module types.Module) error {
	return nil
}
func (f *fakeGraphStore) UpsertCommit(ctx context.Context, repoID string, commit types.Commit) error {
	return nil
}
func (f *fakeGraphStore) UpsertDocument(ctx context.Context, repoID string, doc types.Document) error {
	return nil
}
func (f *fakeGraphStore) CreateEdge(ctx context.Context, repoID string, edge types.Edge) error {
	return nil
}
func (f *fakeGraphStore) DeleteFile(ctx context.Context, repoID, path string) error { return nil }
func (f *fakeGraphStore) Query(ctx context.Context, repoID, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeGraphStore) FindPath(ctx context.Context, repoID, fromKey, toKey string, maxDepth int) ([]types.Edge, error) {
	return nil, nil
}
func (f *fakeGraphStore) GetFile(ctx context.Context, repoID, path string) (*types.File, error) {
	return nil, nil
}
func (f *fakeGraphStore) GetSymbol(ctx context.Context, repoID, qualifiedName string) (*types.Symbol, error) {
	return nil, nil
}
func (f *fakeGraphStore) GetStats(ctx context.Context, repoID string) (graph.Stats, error) {
	return graph.Stats{FileCount: 10, SymbolCount: 50, EdgeCount: 80, ModuleCount: 3}, nil
}
func (f *fakeGraphStore) Clear(ctx context.Context, repoID string) error { return nil }
func (f *fakeGraphStore) Close() error                                  { return nil }

type fakeVS struct{}

func (v *fakeVS) EnsureCollections(ctx context.Context, repoID string, dims int) error { return nil }
func (v *fakeVS) Upsert(ctx context.Context, repoID string, collection vectorstore.Collection, points []vectorstore.Point) error {
	return nil
}
func (v *fakeVS) Search(ctx context.Context, repoID string, collection vectorstore.Collection, vector []float32, limit int, filter map[string]any) ([]vectorstore.SearchResult, error) {
	return []vectorstore.SearchResult{
		{Point: vectorstore.Point{ID: "chunk1", Payload: map[string]any{"text": "func Foo() {}"}}, Score: 0.8},
	}, nil
}
func (v *fakeVS) SearchByLevel(ctx context.Context, repoID string, level int, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (v *fakeVS) SearchHierarchical(ctx context.Context, repoID string, vector []float32, startLevel, endLevel, limit int) (map[int][]vectorstore.SearchResult, error) {
	return nil, nil
}
func (v *fakeVS) GetSummary(ctx context.Context, repoID, id string) (*vectorstore.Point, error) {
	return nil, nil
}
func (v *fakeVS) GetSummaryChildren(ctx context.Context, repoID, id string) ([]vectorstore.Point, error) {
	return nil, nil
}
func (v *fakeVS) DeletePoints(ctx context.Context, repoID string, collection vectorstore.Collection, ids []string) error {
	return nil
}
func (v *fakeVS) DeleteByPayloadMatch(ctx context.Context, repoID string, collection vectorstore.Collection, key, value string) error {
	return nil
}
func (v *fakeVS) Close() error { return nil }

type fakeEmbed struct{}

func (fakeEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}
func (fakeEmbed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbed) Dimensions() int { return 3 }
func (fakeEmbed) Name() string    { return "fake" }

func TestAssembleFallsBackWhenStateMissing(t *testing.T) {
	eng := NewEngine(Deps{RepoID: "repo1", Root: t.TempDir(), Graph: &fakeGraphStore{}, Vector: &fakeVS{}, Embed: fakeEmbed{}})
	result, err := eng.Assemble(context.Background(), "find Foo", 1000, nil, "markdown")
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Contains(t, result.Fragments, "semantic")
}

func TestRefreshThenAssembleScoresAllDimensions(t *testing.T) {
	eng := NewEngine(Deps{RepoID: "repo1", Root: t.TempDir(), Graph: &fakeGraphStore{}, Vector: &fakeVS{}, Embed: fakeEmbed{}})
	require.NoError(t, eng.Refresh(context.Background(), map[string]int{"L1": 10, "L2": 5, "L3": 2, "L4": 1}))

	result, err := eng.Assemble(context.Background(), "find Foo", 2000, nil, "markdown")
	require.NoError(t, err)
	assert.False(t, result.Fallback)
	for _, name := range []string{"structural", "semantic", "temporal", "requirements", "summary", "navigational", "session", "intent", "impact"} {
		_, ok := result.Scores[name]
		assert.True(t, ok, "missing score for dimension %s", name)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	var total float64
	for _, w := range DefaultWeights() {
		total += w
	}
	assert.InDelta(t, 1.0, total, 0.001)
}

func TestRiskBucketThresholds(t *testing.T) {
	assert.Equal(t, "low", riskBucket(0))
	assert.Equal(t, "medium", riskBucket(3))
	assert.Equal(t, "high", riskBucket(10))
}

func TestConventionalTypeParsing(t *testing.T) {
	assert.Equal(t, "feat", conventionalType("feat: add traversal engine"))
	assert.Equal(t, "fix", conventionalType("fix(cache): dedupe in-flight requests"))
	assert.Equal(t, "", conventionalType("no scheme here"))
}
