// Package local launches processes directly on the host.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/HyphaGroup/pubctl/internal/launcher"
)

// waitDelay bounds how long Wait keeps copying output after the process
// was killed by context cancellation.
const waitDelay = 5 * time.Second

// Launcher implements launcher.Launcher with os/exec
type Launcher struct{}

// Ensure Launcher implements launcher.Launcher
var _ launcher.Launcher = (*Launcher)(nil)

// New creates a new local launcher
func New() *Launcher {
	return &Launcher{}
}

// Name returns the launcher name
func (l *Launcher) Name() string {
	return "local"
}

// Close releases launcher resources
func (l *Launcher) Close() error {
	return nil
}

func (l *Launcher) command(ctx context.Context, cfg launcher.ExecConfig) (*exec.Cmd, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, cfg.Cmd[0], cfg.Cmd[1:]...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.WaitDelay = waitDelay
	return cmd, nil
}

// Exec runs a command to completion
func (l *Launcher) Exec(ctx context.Context, cfg launcher.ExecConfig) (*launcher.ExecResult, error) {
	cmd, err := l.command(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("failed to run %s: %w", cfg.Cmd[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &launcher.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// ExecInteractive starts a command with I/O pipes.
//
// stdout and stderr are io.Pipes fed by os/exec's copy goroutines, so Wait
// returns only after every byte the process wrote has been handed to the
// reader, and the readers see EOF afterwards.
func (l *Launcher) ExecInteractive(ctx context.Context, cfg launcher.ExecConfig) (*launcher.InteractiveExec, error) {
	cmd, err := l.command(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdoutWriter.Close()
		_ = stderrWriter.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Cmd[0], err)
	}

	wait := func() (int, error) {
		err := cmd.Wait()
		_ = stdoutWriter.Close()
		_ = stderrWriter.Close()
		// A reader that stopped early makes Wait report a copy error even
		// though the process exited normally; the exit status wins.
		if state := cmd.ProcessState; state != nil && state.ExitCode() >= 0 {
			return state.ExitCode(), nil
		}
		if err != nil {
			return -1, err
		}
		return 0, nil
	}

	return launcher.NewInteractiveExec(stdin, stdoutReader, stderrReader, wait), nil
}
