package traversal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/graph"
	"github.com/contextvault/cv/internal/types"
	"github.com/contextvault/cv/internal/vectorstore"
)

type fakeGraphStore struct {
	files   map[string]types.File
	symbols map[string]types.Symbol
	rows    map[string][]map[string]any // keyed on a substring of the cypher query
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{
		files:   make(map[string]types.File),
		symbols: make(map[string]types.Symbol),
		rows:    make(map[string][]map[string]any),
	}
}

func (f *fakeGraphStore) UpsertFile(ctx context.Context, repoID string, file types.File) error {
	f.files[file.Path] = file
	return nil
}
func (f *fakeGraphStore) UpsertSymbols(ctx context.Context, repoID, file string, symbols []types.Symbol) error {
	for _, s := range symbols {
		f.symbols[s.QualifiedName] = s
	}
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
func (f *fakeGraphStore) DeleteFile(ctx context.Context, repoID, path string) error {
	delete(f.files, path)
	return nil
}
func (f *fakeGraphStore) Query(ctx context.Context, repoID, cypher string, params map[string]any) ([]map[string]any, error) {
	for substr, rows := range f.rows {
		if strings.Contains(cypher, substr) {
			return rows, nil
		}
	}
	return nil, nil
}
func (f *fakeGraphStore) FindPath(ctx context.Context, repoID, fromKey, toKey string, maxDepth int) ([]types.Edge, error) {
	return nil, nil
}
func (f *fakeGraphStore) GetFile(ctx context.Context, repoID, path string) (*types.File, error) {
	file, ok := f.files[path]
	if !ok {
		return nil, nil
	}
	return &file, nil
}
func (f *fakeGraphStore) GetSymbol(ctx context.Context, repoID, qualifiedName string) (*types.Symbol, error) {
	sym, ok := f.symbols[qualifiedName]
	if !ok {
		return nil, nil
	}
	return &sym, nil
}
func (f *fakeGraphStore) GetStats(ctx context.Context, repoID string) (graph.Stats, error) {
	return graph.Stats{}, nil
}
func (f *fakeGraphStore) Clear(ctx context.Context, repoID string) error { return nil }
func (f *fakeGraphStore) Close() error                                  { return nil }

type fakeVS struct{ points map[string]vectorstore.Point }

func newFakeVS() *fakeVS { return &fakeVS{points: make(map[string]vectorstore.Point)} }

func (v *fakeVS) EnsureCollections(ctx context.Context, repoID string, dims int) error { return nil }
func (v *fakeVS) Upsert(ctx context.Context, repoID string, collection vectorstore.Collection, points []vectorstore.Point) error {
	for _, p := range points {
		v.points[p.ID] = p
	}
	return nil
}
func (v *fakeVS) Search(ctx context.Context, repoID string, collection vectorstore.Collection, vector []float32, limit int, filter map[string]any) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (v *fakeVS) SearchByLevel(ctx context.Context, repoID string, level int, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (v *fakeVS) SearchHierarchical(ctx context.Context, repoID string, vector []float32, startLevel, endLevel, limit int) (map[int][]vectorstore.SearchResult, error) {
	return nil, nil
}
func (v *fakeVS) GetSummary(ctx context.Context, repoID, id string) (*vectorstore.Point, error) {
	p, ok := v.points[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
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

func TestNewSessionStartsAtRepoRoot(t *testing.T) {
	eng := NewEngine(t.TempDir(), "repo1", newFakeGraphStore(), newFakeVS(), time.Hour)
	sess, err := eng.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DepthRepo, sess.Position.Depth)
	assert.Empty(t, sess.History)
}

func TestInThenOutReturnsToParent(t *testing.T) {
	vs := newFakeVS()
	vs.points["L3:mod"] = vectorstore.Point{ID: "L3:mod", Payload: map[string]any{"summary": "module summary"}}
	eng := NewEngine(t.TempDir(), "repo1", newFakeGraphStore(), vs, time.Hour)
	sess, err := eng.NewSession(context.Background())
	require.NoError(t, err)

	res, err := eng.In(context.Background(), sess.ID, "mod", 0)
	require.NoError(t, err)
	assert.Equal(t, DepthModule, res.Position.Depth)
	assert.Equal(t, "module summary", res.Summary)

	res, err = eng.Out(context.Background(), sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, DepthRepo, res.Position.Depth)
}

func TestOutAtRootIsAnError(t *testing.T) {
	eng := NewEngine(t.TempDir(), "repo1", newFakeGraphStore(), newFakeVS(), time.Hour)
	sess, err := eng.NewSession(context.Background())
	require.NoError(t, err)

	_, err = eng.Out(context.Background(), sess.ID, 0)
	assert.Error(t, err)
}

func TestSessionSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	g := newFakeGraphStore()
	vs := newFakeVS()

	eng1 := NewEngine(dir, "repo1", g, vs, time.Hour)
	sess, err := eng1.NewSession(context.Background())
	require.NoError(t, err)
	_, err = eng1.In(context.Background(), sess.ID, "mod", 0)
	require.NoError(t, err)

	eng2 := NewEngine(dir, "repo1", g, vs, time.Hour)
	loaded, err := eng2.Session(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, DepthModule, loaded.Position.Depth)
	assert.Equal(t, "mod", loaded.Position.Module)
}

func TestExpiredSessionIsRejected(t *testing.T) {
	eng := NewEngine(t.TempDir(), "repo1", newFakeGraphStore(), newFakeVS(), time.Millisecond)
	sess, err := eng.NewSession(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = eng.Session(sess.ID)
	assert.Error(t, err)
}

func TestBudgetTruncatesListsNotSummary(t *testing.T) {
	r := &TraversalContextResult{
		Summary: "keep me",
		Related: []string{"a", "b", "c", "d", "e"},
		Callers: []string{"x", "y"},
	}
	applyBudget(r, 10)
	assert.Equal(t, "keep me", r.Summary)
	assert.True(t, r.Truncated)
	assert.Less(t, len(r.Related)+len(r.Callers), 7)
}

func TestCalleesDeduplicatesAndSorts(t *testing.T) {
	sym := types.Symbol{Calls: []types.CallSite{
		{CalleeName: "b"}, {CalleeName: "a"}, {CalleeName: "b"},
	}}
	assert.Equal(t, []string{"a", "b"}, callees(sym))
}
