package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// DockerRunner implements Runner via the Docker Engine API, adapted from
// the teacher's compute/providers/docker.Provider: same client
// construction (DOCKER_HOST override, ping-on-connect) and
// create/start/inspect idiom, but run-to-completion (wait for exit,
// collect logs, remove) instead of provision-a-long-lived-container.
type DockerRunner struct {
	client  *client.Client
	logger  *zap.Logger
	network string
}

// NewDockerRunner builds a DockerRunner. host may be empty to use the
// standard Docker socket; network is the default Docker network attached
// to every run unless a RunSpec overrides it.
func NewDockerRunner(host, network string, logger *zap.Logger) (*DockerRunner, error) {
	logger = logger.With(zap.String("component", "container-runner"))

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &DockerRunner{client: cli, logger: logger, network: network}, nil
}

// Close releases the underlying Docker client connection.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// Run creates, starts, and waits for a container running spec, then
// removes it and returns its exit code plus captured stdout/stderr.
func (r *DockerRunner) Run(ctx context.Context, spec RunSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.Timeout)*time.Second)
		defer cancel()
	}

	if spec.PullPolicy != PullNever {
		if err := r.ensureImage(ctx, spec.Image, spec.PullPolicy); err != nil {
			return nil, wrapRunErr("pulling image", err)
		}
	}

	cfg := &container.Config{
		Image: spec.Image,
		Cmd:   spec.Command,
		Env:   convertEnv(spec.Env),
	}
	hostCfg := &container.HostConfig{
		Binds: convertMounts(spec.Mounts),
	}
	network := spec.Network
	if network == "" {
		network = r.network
	}
	if network != "" {
		hostCfg.NetworkMode = container.NetworkMode(network)
	}

	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, wrapRunErr("creating container", err)
	}
	containerID := resp.ID
	defer func() {
		_ = r.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, wrapRunErr("starting container", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return nil, wrapRunErr("waiting for container", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	stdout, stderr, err := r.collectLogs(ctx, containerID)
	if err != nil {
		r.logger.Warn("failed to collect container logs", zap.String("container_id", containerID), zap.Error(err))
	}

	return &Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

func (r *DockerRunner) ensureImage(ctx context.Context, ref string, policy PullPolicy) error {
	if policy != PullAlways {
		if _, _, err := r.client.ImageInspectWithRaw(ctx, ref); err == nil {
			return nil
		}
	}
	rc, err := r.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (r *DockerRunner) collectLogs(ctx context.Context, containerID string) (string, string, error) {
	logCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rc, err := r.client.ContainerLogs(logCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil && err != io.EOF {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

func convertEnv(envMap map[string]string) []string {
	env := make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func convertMounts(mounts []Mount) []string {
	binds := make([]string, 0, len(mounts))
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, mode))
	}
	return binds
}
