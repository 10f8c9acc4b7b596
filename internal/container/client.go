package container

import (
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"strings"

	"github.com/mufancom/remote-workspace/internal/errors"
)

// Client issues docker CLI commands for one compose project.
type Client struct {
	executor    Executor
	projectName string
	workDir     string
}

// NewClient creates a docker client for the given compose project. The
// compose document is expected at docker-compose.yml inside workDir.
func NewClient(executor Executor, projectName, workDir string) *Client {
	if executor == nil {
		executor = ExecExecutor{}
	}
	return &Client{
		executor:    executor,
		projectName: projectName,
		workDir:     workDir,
	}
}

// ComposeUp applies the generated compose document, detaching and removing
// orphaned services whose definitions are gone.
func (c *Client) ComposeUp(ctx context.Context) error {
	stderr, err := c.executor.Run(ctx, Command{
		Name: "docker",
		Args: []string{"compose", "--project-name", c.projectName, "up", "--detach", "--remove-orphans"},
		Dir:  c.workDir,
	})
	if err != nil {
		return wrapCommandError("docker compose up failed", err, stderr)
	}
	return nil
}

// PruneContainers removes stopped containers. Best-effort cleanup.
func (c *Client) PruneContainers(ctx context.Context) error {
	stderr, err := c.executor.Run(ctx, Command{
		Name: "docker",
		Args: []string{"container", "prune", "--force"},
	})
	if err != nil {
		return wrapCommandError("docker container prune failed", err, stderr)
	}
	return nil
}

// PruneNetworks removes dangling networks. Best-effort cleanup.
func (c *Client) PruneNetworks(ctx context.Context) error {
	stderr, err := c.executor.Run(ctx, Command{
		Name: "docker",
		Args: []string{"network", "prune", "--force"},
	})
	if err != nil {
		return wrapCommandError("docker network prune failed", err, stderr)
	}
	return nil
}

// ContainerID resolves the running container id of a compose service. It
// returns an empty id without error when the service has no container.
func (c *Client) ContainerID(ctx context.Context, service string) (string, error) {
	output, err := c.executor.Output(ctx, Command{
		Name: "docker",
		Args: []string{"compose", "--project-name", c.projectName, "ps", "--quiet", service},
		Dir:  c.workDir,
	})
	if err != nil {
		return "", wrapCommandError("docker compose ps failed", err, exitStderr(err))
	}

	id := strings.TrimSpace(string(output))
	if i := strings.IndexByte(id, '\n'); i >= 0 {
		id = id[:i]
	}
	return id, nil
}

// Exec runs a command inside a container and returns its stdout.
func (c *Client) Exec(ctx context.Context, containerID string, command ...string) ([]byte, error) {
	args := append([]string{"exec", containerID}, command...)
	output, err := c.executor.Output(ctx, Command{
		Name: "docker",
		Args: args,
	})
	if err != nil {
		return nil, wrapCommandError("docker exec failed", err, exitStderr(err))
	}
	return output, nil
}

// Logs returns the captured log output of a container.
func (c *Client) Logs(ctx context.Context, containerID string) ([]byte, error) {
	output, err := c.executor.Output(ctx, Command{
		Name: "docker",
		Args: []string{"logs", containerID},
	})
	if err != nil {
		return nil, wrapCommandError("docker logs failed", err, exitStderr(err))
	}
	return output, nil
}

// FollowLogs streams a container's log output until the reader is closed.
func (c *Client) FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	reader, err := c.executor.Stream(ctx, Command{
		Name: "docker",
		Args: []string{"logs", "--follow", containerID},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalCommand, "docker logs --follow failed to start", err)
	}
	return reader, nil
}

// exitStderr extracts stderr captured by exec.Cmd.Output.
func exitStderr(err error) []byte {
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return nil
}

func wrapCommandError(message string, cause error, stderr []byte) *errors.Error {
	wrapped := errors.Wrap(errors.ErrExternalCommand, message, cause)
	if len(stderr) > 0 {
		wrapped.WithContext("stderr", strings.TrimSpace(string(stderr)))
	}
	return wrapped
}
