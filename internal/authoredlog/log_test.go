package authoredlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/types"
)

func TestAppendAndGet(t *testing.T) {
	l := New(t.TempDir())

	entry := types.AuthoredEntry{
		Kind:      types.AuthoredAnnotation,
		Path:      "internal/foo.go",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Payload:   map[string]any{"note": "handle with care"},
	}
	saved, err := l.Append(entry)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, ok, err := l.Get(types.AuthoredAnnotation, "internal/foo.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "handle with care", got.Payload["note"])
}

func TestAppendStaleWriteIsIgnored(t *testing.T) {
	l := New(t.TempDir())

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	_, err := l.Append(types.AuthoredEntry{
		Kind: types.AuthoredDocumentMeta, Path: "doc.md",
		UpdatedAt: newer, Payload: map[string]any{"v": "new"},
	})
	require.NoError(t, err)

	result, err := l.Append(types.AuthoredEntry{
		Kind: types.AuthoredDocumentMeta, Path: "doc.md",
		UpdatedAt: older, Payload: map[string]any{"v": "stale"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new", result.Payload["v"], "stale write must not overwrite the newer entry")
}

func TestLoadSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()

	l1 := New(dir)
	_, err := l1.Append(types.AuthoredEntry{
		Kind: types.AuthoredRelationship, Path: "a.go",
		UpdatedAt: time.Now(), Payload: map[string]any{"related_to": "b.go"},
	})
	require.NoError(t, err)

	l2 := New(dir)
	got, ok, err := l2.Get(types.AuthoredRelationship, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b.go", got.Payload["related_to"])
}

func TestImportReportsImportedUpdatedSkipped(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	old := time.Now().Add(-time.Hour)
	_, err := l.Append(types.AuthoredEntry{
		Kind: types.AuthoredAnnotation, Path: "x.go", UpdatedAt: old,
		Payload: map[string]any{"v": 1},
	})
	require.NoError(t, err)

	res, err := l.Import([]types.AuthoredEntry{
		{Kind: types.AuthoredAnnotation, Path: "x.go", UpdatedAt: old, Payload: map[string]any{"v": 1}},           // stale, skipped
		{Kind: types.AuthoredAnnotation, Path: "x.go", UpdatedAt: time.Now(), Payload: map[string]any{"v": 2}},    // updated
		{Kind: types.AuthoredAnnotation, Path: "y.go", UpdatedAt: time.Now(), Payload: map[string]any{"v": 3}},    // imported
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)

	// Re-importing the same bundle (now all stale-or-equal) yields 0/0/N skipped.
	res2, err := l.Import([]types.AuthoredEntry{
		{Kind: types.AuthoredAnnotation, Path: "x.go", UpdatedAt: old, Payload: map[string]any{"v": 1}},
		{Kind: types.AuthoredAnnotation, Path: "y.go", UpdatedAt: old, Payload: map[string]any{"v": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Imported)
	assert.Equal(t, 0, res2.Updated)
	assert.Equal(t, 2, res2.Skipped)
}
