// Package supervisor ensures the three external backends (graph DB,
// vector DB, embedding server) are up before the rest of cv depends on
// them: check a managed container by canonical name, start/recreate it
// as needed, or launch it fresh on a free port. Grounded on
// Aureuma-si's agents/shared/docker.Client (agents/shared/docker/client.go):
// same NewClient/ContainerByName/StartContainer/CreateContainer/
// RemoveContainer shape, trimmed to the subset ensure() needs.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/contextvault/cv/internal/cverr"
)

// dockerClient is the thin subset of the Docker Engine API the
// supervisor touches.
type dockerClient struct {
	api *client.Client
}

func newDockerClient() (*dockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, cverr.Wrap(cverr.KindIO, "supervisor.newDockerClient", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, cverr.Wrap(cverr.KindIO, "supervisor.newDockerClient", err)
	}
	return &dockerClient{api: cli}, nil
}

func (d *dockerClient) Close() error {
	if d == nil || d.api == nil {
		return nil
	}
	return d.api.Close()
}

// byName inspects a container by its canonical name, returning
// (nil, nil) if no such container exists.
func (d *dockerClient) byName(ctx context.Context, name string) (*types.ContainerJSON, error) {
	info, err := d.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &info, nil
}

func (d *dockerClient) start(ctx context.Context, id string) error {
	return d.api.ContainerStart(ctx, id, container.StartOptions{})
}

func (d *dockerClient) remove(ctx context.Context, id string) error {
	return d.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// create builds and starts a fresh single-port container bound to
// hostPort on the host, named for easy re-discovery on the next ensure().
func (d *dockerClient) create(ctx context.Context, name, image string, containerPort, hostPort int, labels map[string]string) (string, error) {
	portKey := fmt.Sprintf("%d/tcp", containerPort)
	cfg := &container.Config{
		Image:  image,
		Labels: labels,
		ExposedPorts: map[string]struct{}{portKey: {}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: map[string][]container.PortBinding{
			portKey: {{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", hostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	resp, err := d.api.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", err
	}
	if err := d.start(ctx, resp.ID); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func stateOf(info *types.ContainerJSON) string {
	if info == nil || info.State == nil {
		return "absent"
	}
	switch {
	case info.State.Running:
		return "running"
	case strings.EqualFold(info.State.Status, "created"):
		return "created"
	case info.State.Dead, info.State.OOMKilled, info.State.ExitCode != 0 && !info.State.Running:
		return "failed"
	default:
		return "stopped"
	}
}
