package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "redis://localhost:6379", cfg.Graph.URL)
	require.Equal(t, "code_chunks", cfg.Vector.Collections.CodeChunks)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cv"), 0755))
	yamlBody := "graph:\n  url: redis://graph.internal:6379\nsync:\n  autoSync: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".cv", "config.yaml"), []byte(yamlBody), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "redis://graph.internal:6379", cfg.Graph.URL)
	require.True(t, cfg.Sync.AutoSync)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CV_FALKORDB_URL", "redis://env-override:6379")
	t.Setenv("CV_DEBUG", "true")

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "redis://env-override:6379", cfg.Graph.URL)
	require.True(t, cfg.Logging.DebugMode)
}

func TestSaveRoundTrips(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Repository.ID = "repo-123"
	require.NoError(t, cfg.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "repo-123", loaded.Repository.ID)
}
