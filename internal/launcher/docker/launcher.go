// Package docker runs worker commands inside an already running container
// through the Docker Engine API.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/HyphaGroup/pubctl/internal/launcher"
	"github.com/HyphaGroup/pubctl/internal/validation"
	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// pollInterval is how often an exec is inspected while waiting for it to exit.
const pollInterval = 100 * time.Millisecond

// Launcher implements launcher.Launcher using the Docker SDK. Every command
// is executed in the container named by ref.
type Launcher struct {
	client *client.Client
	ref    string
}

// Ensure Launcher implements launcher.Launcher
var _ launcher.Launcher = (*Launcher)(nil)

// New creates a Docker launcher bound to a container ID or name
func New(ref string) (*Launcher, error) {
	if err := validation.ValidateContainerRef(ref); err != nil {
		return nil, err
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Launcher{client: cli, ref: ref}, nil
}

// Name returns the launcher name
func (l *Launcher) Name() string {
	return "docker"
}

// Close closes the Docker client connection
func (l *Launcher) Close() error {
	return l.client.Close()
}

// ensureRunning fails fast with a readable error when the target container
// is missing or stopped.
func (l *Launcher) ensureRunning(ctx context.Context) error {
	inspect, err := l.client.ContainerInspect(ctx, l.ref)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", l.ref, err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return fmt.Errorf("container %s is not running", l.ref)
	}
	return nil
}

// Exec executes a command in the container and waits for it
func (l *Launcher) Exec(ctx context.Context, cfg launcher.ExecConfig) (*launcher.ExecResult, error) {
	if err := l.ensureRunning(ctx); err != nil {
		return nil, err
	}

	execResp, err := l.client.ContainerExecCreate(ctx, l.ref, dockercontainer.ExecOptions{
		Cmd:          cfg.Cmd,
		Env:          cfg.Env,
		WorkingDir:   cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := l.client.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, attachResp.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	code, err := l.waitExec(ctx, execResp.ID)
	if err != nil {
		return nil, err
	}

	return &launcher.ExecResult{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: code,
	}, nil
}

// ExecInteractive starts a command in the container with I/O pipes
func (l *Launcher) ExecInteractive(ctx context.Context, cfg launcher.ExecConfig) (*launcher.InteractiveExec, error) {
	if err := l.ensureRunning(ctx); err != nil {
		return nil, err
	}

	execResp, err := l.client.ContainerExecCreate(ctx, l.ref, dockercontainer.ExecOptions{
		Cmd:          cfg.Cmd,
		Env:          cfg.Env,
		WorkingDir:   cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  true,
		Tty:          false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := l.client.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()

	demuxDone := make(chan struct{})
	go func() {
		defer close(demuxDone)
		defer func() { _ = stdoutWriter.Close() }()
		defer func() { _ = stderrWriter.Close() }()
		_, _ = stdcopy.StdCopy(stdoutWriter, stderrWriter, attachResp.Reader)
	}()

	// Docker has no API to kill an exec; dropping the attach connection
	// closes the worker's stdin, which ends its session loop.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			attachResp.Close()
		case <-stopWatch:
		}
	}()

	execID := execResp.ID
	wait := func() (int, error) {
		defer close(stopWatch)
		code, err := l.waitExec(ctx, execID)
		if err != nil {
			attachResp.Close()
			return -1, err
		}
		<-demuxDone
		return code, nil
	}

	stdin := &hijackedWriteCloser{conn: attachResp}

	return launcher.NewInteractiveExec(stdin, stdoutReader, stderrReader, wait), nil
}

func (l *Launcher) waitExec(ctx context.Context, execID string) (int, error) {
	for {
		inspectResp, err := l.client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return -1, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspectResp.Running {
			return inspectResp.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// hijackedWriteCloser wraps a HijackedResponse to implement io.WriteCloser.
// Close only half-closes so the worker's remaining output can still be read.
type hijackedWriteCloser struct {
	conn types.HijackedResponse
}

func (h *hijackedWriteCloser) Write(p []byte) (n int, err error) {
	return h.conn.Conn.Write(p)
}

func (h *hijackedWriteCloser) Close() error {
	return h.conn.CloseWrite()
}
