// Package container wraps the external docker CLI used to apply the
// generated compose document and inspect running workspaces.
package container

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// Command describes one external invocation. Args are passed directly to the
// process spawn primitive, never through a shell.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Executor runs external commands. The indirection exists so tests can
// substitute canned results for docker invocations.
type Executor interface {
	// Run streams stdout/stderr to the parent process and returns captured
	// stderr alongside any error.
	Run(ctx context.Context, cmd Command) ([]byte, error)

	// Output captures and returns stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)

	// Stream starts the command and returns its stdout for incremental
	// consumption. The command is reaped when the reader is closed.
	Stream(ctx context.Context, cmd Command) (io.ReadCloser, error)
}

// ExecExecutor is the os/exec backed Executor.
type ExecExecutor struct{}

// Run implements Executor.
func (ExecExecutor) Run(ctx context.Context, cmd Command) ([]byte, error) {
	var stderr bytes.Buffer

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = os.Stdout
	c.Stderr = io.MultiWriter(os.Stderr, &stderr)

	err := c.Run()
	return stderr.Bytes(), err
}

// Output implements Executor.
func (ExecExecutor) Output(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	return c.Output()
}

// Stream implements Executor.
func (ExecExecutor) Stream(ctx context.Context, cmd Command) (io.ReadCloser, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}

	return &processReader{ReadCloser: stdout, cmd: c}, nil
}

// processReader reaps the child process when the stream is closed.
type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *processReader) Close() error {
	err := r.ReadCloser.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return err
}
