package deltasync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/cv/internal/config"
	"github.com/contextvault/cv/internal/parser"
	"github.com/contextvault/cv/internal/types"
)

type fakeSink struct {
	mu          sync.Mutex
	files       []string
	docs        []string
	deleted     []string
	forcedFiles []string
}

func (f *fakeSink) UpsertFile(ctx context.Context, repoID string, file types.File, pf *parser.ParsedFile, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file.Path)
	if force {
		f.forcedFiles = append(f.forcedFiles, file.Path)
	}
	return nil
}

func (f *fakeSink) UpsertDocument(ctx context.Context, repoID string, doc *parser.ParsedDocument, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc.Path)
	return nil
}

func (f *fakeSink) UpsertCommits(ctx context.Context, repoID string, records []CommitRecord) error {
	return nil
}

func (f *fakeSink) DeleteFile(ctx context.Context, repoID string, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

func TestEngineSyncAddsAndDeletes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "README.md", "# Title\n\nbody\n")

	cfg := config.DefaultConfig()
	sink := &fakeSink{}
	svc := parser.NewService()
	defer svc.Close()

	eng := NewEngine(root, "repo1", cfg, svc, sink)
	stats, err := eng.Sync(context.Background(), ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)
	assert.Contains(t, sink.files, "main.go")
	assert.Contains(t, sink.docs, "README.md")

	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))
	stats2, err := eng.Sync(context.Background(), ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, stats2.Deleted)
	assert.Contains(t, sink.deleted, "main.go")
	assert.Equal(t, 1, stats2.Unchanged)
}

func TestEngineSyncForceReembedsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	cfg := config.DefaultConfig()
	sink := &fakeSink{}
	svc := parser.NewService()
	defer svc.Close()

	eng := NewEngine(root, "repo1", cfg, svc, sink)
	_, err := eng.Sync(context.Background(), ModeIncremental)
	require.NoError(t, err)
	assert.Empty(t, sink.forcedFiles)

	stats, err := eng.Sync(context.Background(), ModeForce)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Modified+stats.Added)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Contains(t, sink.forcedFiles, "main.go")
}
