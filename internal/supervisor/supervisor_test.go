package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOfNilIsAbsent(t *testing.T) {
	assert.Equal(t, "absent", stateOf(nil))
}

func TestStateOfRunning(t *testing.T) {
	info := &types.ContainerJSON{}
	info.State = &types.ContainerState{Running: true}
	assert.Equal(t, "running", stateOf(info))
}

func TestStateOfCreated(t *testing.T) {
	info := &types.ContainerJSON{}
	info.State = &types.ContainerState{Status: "created"}
	assert.Equal(t, "created", stateOf(info))
}

func TestHostPortOfDefaultsWhenUnbound(t *testing.T) {
	spec := DefaultSpecs()[BackendVector]
	assert.Equal(t, spec.DefaultPort, hostPortOf(nil, spec))
}

func TestHostPortOfReadsBinding(t *testing.T) {
	spec := DefaultSpecs()[BackendVector]
	info := &types.ContainerJSON{}
	info.NetworkSettings = &types.NetworkSettings{
		NetworkSettingsBase: types.NetworkSettingsBase{
			Ports: map[nat.Port][]nat.PortBinding{
				"6333/tcp": {{HostPort: "7777"}},
			},
		},
	}
	assert.Equal(t, 7777, hostPortOf(info, spec))
}

func TestFindFreePortReturnsListenablePort(t *testing.T) {
	sup := &Supervisor{}
	port, err := sup.findFreePort(20000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 20000)
}

func TestHealthCheckVectorUsesHealthzEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sup := &Supervisor{httpClient: srv.Client()}
	err := sup.healthCheck(context.Background(), BackendVector, srv.URL)
	assert.NoError(t, err)
}

func TestHealthCheckEmbeddingUsesTagsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sup := &Supervisor{httpClient: srv.Client()}
	err := sup.healthCheck(context.Background(), BackendEmbedding, srv.URL)
	assert.NoError(t, err)
}

func TestModelPresentParsesTagsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"embeddinggemma:latest"}]}`))
	}))
	defer srv.Close()

	sup := &Supervisor{httpClient: srv.Client()}
	present, err := sup.modelPresent(context.Background(), srv.URL, "embeddinggemma")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestDefaultSpecsCoverAllBackends(t *testing.T) {
	specs := DefaultSpecs()
	for _, b := range []Backend{BackendGraph, BackendVector, BackendEmbedding} {
		_, ok := specs[b]
		assert.True(t, ok, "missing spec for %s", b)
	}
}
