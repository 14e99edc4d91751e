package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

// Backend names the three external services the supervisor manages.
type Backend string

const (
	BackendGraph     Backend = "graph"
	BackendVector    Backend = "vector"
	BackendEmbedding Backend = "embedding"
)

// BackendSpec is the canonical shape (image, ports, health check) for
// one managed backend container.
type BackendSpec struct {
	Name          string // canonical container name
	Image         string
	ContainerPort int
	DefaultPort   int // first port tried during linear scan
	Labels        map[string]string
}

// DefaultSpecs returns the canonical container specs for cv's three backends.
func DefaultSpecs() map[Backend]BackendSpec {
	labels := map[string]string{"managed-by": "contextvault"}
	return map[Backend]BackendSpec{
		BackendGraph: {
			Name: "cv-graph", Image: "falkordb/falkordb:latest",
			ContainerPort: 6379, DefaultPort: 6379, Labels: labels,
		},
		BackendVector: {
			Name: "cv-vector", Image: "qdrant/qdrant:latest",
			ContainerPort: 6333, DefaultPort: 6333, Labels: labels,
		},
		BackendEmbedding: {
			Name: "cv-embedding", Image: "ollama/ollama:latest",
			ContainerPort: 11434, DefaultPort: 11434, Labels: labels,
		},
	}
}

// ProgressFunc reports streaming model-pull progress for the embedding backend.
type ProgressFunc func(status string, completed, total int64)

// Status is what Ensure returns: where the backend ended up listening.
type Status struct {
	Backend Backend
	URL     string
	Started bool // true if the supervisor started or created the container
}

// Supervisor ensures the three backend containers are running and
// healthy, per spec.md §4.8's five-step check/start/recreate/launch
// state machine. Grounded on Aureuma-si's docker.Client wrapper,
// adapted from arbitrary container lifecycle management to the fixed
// three-backend ensure() policy this package owns.
type Supervisor struct {
	docker       *dockerClient
	specs        map[Backend]BackendSpec
	waitTimeout  time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
}

// New connects to the local Docker daemon. Returns an error if Docker
// is unreachable; callers that don't need the supervisor (backends
// already reachable, managed externally) simply don't construct one.
func New() (*Supervisor, error) {
	dc, err := newDockerClient()
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		docker:       dc,
		specs:        DefaultSpecs(),
		waitTimeout:  30 * time.Second,
		pollInterval: 500 * time.Millisecond,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (s *Supervisor) Close() error { return s.docker.Close() }

// Ensure runs the five-step check/start/recreate/launch policy for one
// backend and returns the URL it ended up reachable on.
func (s *Supervisor) Ensure(ctx context.Context, backend Backend) (*Status, error) {
	spec, ok := s.specs[backend]
	if !ok {
		return nil, cverr.New(cverr.KindValidation, "supervisor.Ensure", fmt.Sprintf("unknown backend %q", backend))
	}

	info, err := s.docker.byName(ctx, spec.Name)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
	}

	hostPort := spec.DefaultPort
	started := false

	switch stateOf(info) {
	case "running":
		hostPort = hostPortOf(info, spec)
		url := backendURL(backend, hostPort)
		if err := s.waitHealthy(ctx, backend, url); err != nil {
			return nil, err
		}
		logging.Infof(logging.CategorySupervisor, "supervisor: %s already running and healthy at %s", spec.Name, url)

	case "stopped":
		hostPort = hostPortOf(info, spec)
		if err := s.docker.start(ctx, info.ID); err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		started = true
		logging.Infof(logging.CategorySupervisor, "supervisor: started stopped container %s", spec.Name)

	case "failed", "created":
		if err := s.docker.remove(ctx, info.ID); err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		hostPort, err = s.findFreePort(spec.DefaultPort)
		if err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		if _, err := s.docker.create(ctx, spec.Name, spec.Image, spec.ContainerPort, hostPort, spec.Labels); err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		started = true
		logging.Infof(logging.CategorySupervisor, "supervisor: recreated failed/created container %s", spec.Name)

	default: // absent
		hostPort, err = s.findFreePort(spec.DefaultPort)
		if err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		if _, err := s.docker.create(ctx, spec.Name, spec.Image, spec.ContainerPort, hostPort, spec.Labels); err != nil {
			return nil, cverr.Wrap(cverr.KindIO, "supervisor.Ensure", err)
		}
		started = true
		logging.Infof(logging.CategorySupervisor, "supervisor: launched new container %s on port %d", spec.Name, hostPort)
	}

	url := backendURL(backend, hostPort)
	if err := s.waitHealthy(ctx, backend, url); err != nil {
		return nil, err
	}
	if backend == BackendEmbedding {
		if err := s.ensureModelPulled(ctx, url, "embeddinggemma", nil); err != nil {
			return nil, err
		}
	}
	return &Status{Backend: backend, URL: url, Started: started}, nil
}

func backendURL(backend Backend, port int) string {
	switch backend {
	case BackendGraph:
		return fmt.Sprintf("redis://localhost:%d", port)
	default:
		return fmt.Sprintf("http://localhost:%d", port)
	}
}

func hostPortOf(info *types.ContainerJSON, spec BackendSpec) int {
	if info == nil || info.NetworkSettings == nil {
		return spec.DefaultPort
	}
	key := nat.Port(fmt.Sprintf("%d/tcp", spec.ContainerPort))
	bindings, ok := info.NetworkSettings.Ports[key]
	if !ok {
		return spec.DefaultPort
	}
	for _, b := range bindings {
		if b.HostPort != "" {
			var port int
			if _, err := fmt.Sscanf(b.HostPort, "%d", &port); err == nil && port != 0 {
				return port
			}
		}
	}
	return spec.DefaultPort
}

// findFreePort does a linear scan from start, matching spec.md §4.8
// step 4 ("picks an available port (linear scan from a default)").
func (s *Supervisor) findFreePort(start int) (int, error) {
	for port := start; port < start+200; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			_ = ln.Close()
			return port, nil
		}
	}
	return 0, cverr.New(cverr.KindIO, "supervisor.findFreePort", "no free port found in range")
}

// waitHealthy polls the backend-specific health check until it
// succeeds or waitTimeout elapses.
func (s *Supervisor) waitHealthy(ctx context.Context, backend Backend, url string) error {
	deadline := time.Now().Add(s.waitTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.healthCheck(ctx, backend, url); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(s.pollInterval)
	}
	return cverr.Wrap(cverr.KindTimeout, "supervisor.waitHealthy", fmt.Errorf("%s not healthy after %s: %w", backend, s.waitTimeout, lastErr))
}

// healthCheck runs the per-backend check named in spec.md §4.8: a
// graph-module ping, an HTTP GET for the vector store, a model-list
// GET for the embedding server.
func (s *Supervisor) healthCheck(ctx context.Context, backend Backend, url string) error {
	switch backend {
	case BackendGraph:
		addr := strings.TrimPrefix(url, "redis://")
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		return rdb.Ping(ctx).Err()

	case BackendVector:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("vector healthz returned %d", resp.StatusCode)
		}
		return nil

	case BackendEmbedding:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/tags", nil)
		if err != nil {
			return err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("embedding /api/tags returned %d", resp.StatusCode)
		}
		return nil
	}
	return cverr.New(cverr.KindValidation, "supervisor.healthCheck", fmt.Sprintf("unknown backend %q", backend))
}

type pullProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// ensureModelPulled checks the embedding server's model list and, if
// absent, issues a pull and streams progress through onProgress.
func (s *Supervisor) ensureModelPulled(ctx context.Context, url, model string, onProgress ProgressFunc) error {
	have, err := s.modelPresent(ctx, url, model)
	if err != nil {
		return err
	}
	if have {
		return nil
	}
	logging.Infof(logging.CategorySupervisor, "supervisor: pulling embedding model %s", model)

	body := strings.NewReader(fmt.Sprintf(`{"name":%q,"stream":true}`, model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/api/pull", body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return cverr.Wrap(cverr.KindIO, "supervisor.ensureModelPulled", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p pullProgress
		if err := dec.Decode(&p); err != nil {
			break
		}
		if onProgress != nil {
			onProgress(p.Status, p.Completed, p.Total)
		}
	}
	return nil
}

func (s *Supervisor) modelPresent(ctx context.Context, url, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, cverr.Wrap(cverr.KindIO, "supervisor.modelPresent", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, nil
	}
	for _, m := range payload.Models {
		if strings.HasPrefix(m.Name, model) {
			return true, nil
		}
	}
	return false, nil
}
