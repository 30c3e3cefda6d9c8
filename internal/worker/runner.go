// Package worker provides the worker process abstraction.
//
// runner.go - Runner and Process interfaces
//
// This file contains:
// - Runner interface for the capability probe, build step and worker launch
// - Process interface exposing the handshake and exit-code futures
// - CompatibilityResult reported by the capability probe

package worker

import (
	"context"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/project"
)

// Runner is the interface for running a project's worker and build step
type Runner interface {
	// CheckCompatibility probes the worker's version and capabilities.
	// An unrunnable or unparsable worker is reported as incompatible, not
	// as an error; errors are reserved for cancellation.
	CheckCompatibility(ctx context.Context, proj *project.Project) (*CompatibilityResult, error)

	// Build runs the project's build step and returns its exit code.
	Build(ctx context.Context, proj *project.Project) (int, error)

	// Start launches the worker. The returned Process is running; its
	// session becomes available once the worker completes the handshake.
	Start(ctx context.Context, proj *project.Project, opts StartOptions) (Process, error)
}

// Process is one launched worker
type Process interface {
	// Session waits for the session handshake. It fails when the worker
	// exits first, the handshake fails or times out, or ctx is cancelled.
	Session(ctx context.Context) (backchannel.Session, error)

	// Wait waits for the worker to exit and returns its exit code.
	Wait(ctx context.Context) (int, error)
}

// CompatibilityResult is the verdict of the capability probe
type CompatibilityResult struct {
	IsCompatible    bool
	SupportsSession bool
	WorkerVersion   string
	// Reason explains an incompatible verdict.
	Reason string
}
