package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/contextvault/cv/internal/types"
)

// setupFalkorDB starts a real FalkorDB container, grounded on the
// DragonflyDB testcontainer setup in the pack's container-testing
// helpers (same image/wait-strategy/cleanup shape, different image).
func setupFalkorDB(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed graph test in short mode")
	}
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "falkordb/falkordb:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return "redis://" + host + ":" + port.Port()
}

func TestRedisStoreUpsertFileRoundTrip(t *testing.T) {
	url := setupFalkorDB(t)
	ctx := context.Background()

	store, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	repoID := "integration-test"
	defer store.Clear(ctx, repoID)

	require.NoError(t, store.UpsertFile(ctx, repoID, types.File{
		Path: "main.go", Language: "go", Size: 120, LinesOfCode: 10,
	}))

	file, err := store.GetFile(ctx, repoID, "main.go")
	require.NoError(t, err)
	require.NotNil(t, file)
	require.Equal(t, "go", file.Language)

	stats, err := store.GetStats(ctx, repoID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.FileCount, 1)
}
