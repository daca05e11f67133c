package containerctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// State is the observed lifecycle state of a container, read straight
// from the Docker daemon rather than cached - the Lifecycle Manager is
// the one that caches this against its own in-memory ServerRuntime.
type State string

const (
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateRestarting State = "restarting"
	StateCreated    State = "created"
	StatePaused     State = "paused"
	StateDead       State = "dead"
	StateMissing    State = "missing"

	HealthHealthy  = "healthy"
	HealthStarting = "starting"
	HealthUnhealthy = "unhealthy"
	HealthNone     = "none"
)

// Status is the full picture of a container used by the Readiness Prober
// and the Lifecycle Manager's reconciliation check.
type Status struct {
	State  State
	Health string
}

// Ctl wraps the Docker SDK client the way
// mannomannX-PayPerPlayHosting's DockerService does: a thin client
// holder with one method per lifecycle operation the proxy needs.
type Ctl struct {
	cli *client.Client
	log *zap.Logger
}

func New(host string, log *zap.Logger) (*Ctl, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Ctl{cli: cli, log: log}, nil
}

func (c *Ctl) Close() error {
	return c.cli.Close()
}

func (c *Ctl) Start(ctx context.Context, containerName string) error {
	c.log.Info("starting container", zap.String("container", containerName))
	if err := c.cli.ContainerStart(ctx, containerName, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", containerName, err)
	}
	return nil
}

func (c *Ctl) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	c.log.Info("stopping container", zap.String("container", containerName), zap.Duration("timeout", timeout))
	secs := int(timeout.Seconds())
	if err := c.cli.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("stopping container %s: %w", containerName, err)
	}
	return nil
}

// Status inspects the container and returns its state and (if
// configured) container health. A container that doesn't exist yet
// is reported as StateMissing rather than an error, since a server
// that has never been started is a normal, expected condition.
func (c *Ctl) Status(ctx context.Context, containerName string) (Status, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Status{State: StateMissing}, nil
		}
		return Status{}, fmt.Errorf("inspecting container %s: %w", containerName, err)
	}

	st := Status{State: State(inspect.State.Status)}
	if inspect.State.Health != nil {
		st.Health = inspect.State.Health.Status
	}
	return st, nil
}

// Exec runs a one-shot command inside the container (e.g. an
// rcon-cli save/stop command) and returns its combined output,
// grounded on velocity_service.go's ReloadConfig exec pattern.
func (c *Ctl) Exec(ctx context.Context, containerName string, cmd []string) (string, error) {
	execCfg := types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := c.cli.ContainerExecCreate(ctx, containerName, execCfg)
	if err != nil {
		return "", fmt.Errorf("creating exec in %s: %w", containerName, err)
	}

	resp, err := c.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", fmt.Errorf("attaching exec in %s: %w", containerName, err)
	}
	defer resp.Close()

	out, err := io.ReadAll(resp.Reader)
	if err != nil {
		return "", fmt.Errorf("reading exec output from %s: %w", containerName, err)
	}
	return string(out), nil
}
