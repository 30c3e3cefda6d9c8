// Package launcher starts worker processes and the helper commands around
// them. A Launcher hides where the process runs: directly on the host
// (local) or inside an already running container (docker).
package launcher

import (
	"context"
	"io"
	"sync"
)

// Launcher defines the process launch abstraction
type Launcher interface {
	// Exec runs a command to completion and captures its output.
	Exec(ctx context.Context, config ExecConfig) (*ExecResult, error)

	// ExecInteractive starts a command with stdin/stdout/stderr pipes attached.
	// Cancelling ctx terminates the process.
	ExecInteractive(ctx context.Context, config ExecConfig) (*InteractiveExec, error)

	Name() string
	Close() error
}

// ExecConfig for command execution
type ExecConfig struct {
	Cmd        []string
	Env        []string
	WorkingDir string
}

// ExecResult contains execution output
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// InteractiveExec represents an interactive command execution with I/O pipes
type InteractiveExec struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	wait     func() (int, error)
	waitOnce sync.Once
	done     chan struct{}
	code     int
	err      error
}

// NewInteractiveExec creates a new InteractiveExec
func NewInteractiveExec(stdin io.WriteCloser, stdout, stderr io.ReadCloser, wait func() (int, error)) *InteractiveExec {
	return &InteractiveExec{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		done:   make(chan struct{}),
		wait:   wait,
	}
}

// Done returns a channel that is closed when the process exits.
// It only fires once some goroutine is blocked in Wait.
func (e *InteractiveExec) Done() <-chan struct{} {
	return e.done
}

// Wait waits for the process to exit and returns the exit code.
// Safe to call from several goroutines; the process is reaped once.
func (e *InteractiveExec) Wait() (int, error) {
	e.waitOnce.Do(func() {
		e.code, e.err = e.wait()
		close(e.done)
	})
	<-e.done
	return e.code, e.err
}

// Close closes all I/O streams
func (e *InteractiveExec) Close() error {
	if e.Stdin != nil {
		_ = e.Stdin.Close()
	}
	if e.Stdout != nil {
		_ = e.Stdout.Close()
	}
	if e.Stderr != nil {
		_ = e.Stderr.Close()
	}
	return nil
}
