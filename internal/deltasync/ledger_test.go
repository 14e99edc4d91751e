package deltasync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/types"
)

func TestLedgerSaveAndReload(t *testing.T) {
	root := t.TempDir()
	l := NewLedger(root)
	l.Set("a.go", types.LedgerEntry{ContentHash: "abc", Size: 10, Type: "code"})
	require.NoError(t, l.Save())

	reloaded := NewLedger(root)
	entry, ok := reloaded.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, "abc", entry.ContentHash)
}

func TestLedgerSaveNoopWhenClean(t *testing.T) {
	root := t.TempDir()
	l := NewLedger(root)
	require.NoError(t, l.Save())
}

func TestLedgerDelete(t *testing.T) {
	root := t.TempDir()
	l := NewLedger(root)
	l.Set("a.go", types.LedgerEntry{ContentHash: "abc"})
	l.Delete("a.go")
	_, ok := l.Get("a.go")
	assert.False(t, ok)
}
