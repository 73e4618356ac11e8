package dockerclient

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Engine is a thin wrapper over the Docker Engine API used for image
// presence checks and daemon reachability.
type Engine struct {
	cli *client.Client
}

// New connects using DOCKER_HOST and friends, negotiating the API version.
func New() (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Engine{cli: cli}, nil
}

// Ping checks that the daemon answers.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// ImageExists reports whether ref is present in the local image store.
func (e *Engine) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", ref, err)
}

func (e *Engine) Close() error { return e.cli.Close() }
