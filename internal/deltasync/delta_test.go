package deltasync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestComputeDeltaClassifiesFourWays(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")
	writeFile(t, root, "vendor/skip.go", "package skip\n")

	cfg := config.DefaultConfig()
	ledger := NewLedger(root)

	delta, contents, err := computeDelta(root, &cfg.Sync, ledger)
	require.NoError(t, err)
	assert.Len(t, delta.Added, 2)
	assert.Empty(t, delta.Modified)
	assert.Empty(t, delta.Deleted)
	assert.Contains(t, contents, "a.go")
	assert.NotContains(t, contents, "vendor/skip.go")

	for _, c := range delta.Added {
		ledger.Set(c.Path, types.LedgerEntry{
			ContentHash: parser.ContentHash(contents[c.Path]),
			Size:        c.Size,
			Type:        "code",
		})
	}

	writeFile(t, root, "a.go", "package a\n\nfunc Changed() {}\n")
	os.Remove(filepath.Join(root, "b.go"))

	delta2, _, err := computeDelta(root, &cfg.Sync, ledger)
	require.NoError(t, err)
	assert.Len(t, delta2.Modified, 1)
	assert.Equal(t, "a.go", delta2.Modified[0].Path)
	require.Len(t, delta2.Deleted, 1)
	assert.Equal(t, "b.go", delta2.Deleted[0].Path)
}
