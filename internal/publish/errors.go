package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPublishers is returned when the worker reports no publishers.
	ErrNoPublishers = errors.New("no publishers were found")

	// ErrInvariant marks a sequencing bug inside the pipeline.
	ErrInvariant = errors.New("pipeline invariant violated")

	// ErrCancelled is returned when the operator interrupts the command.
	ErrCancelled = errors.New("operation cancelled")
)

// IncompatibleWorkerError is raised when the worker cannot serve a session.
// It is the only error that leaves the pipeline stages; Pipeline.Run
// renders it with the worker version from the compatibility check.
type IncompatibleWorkerError struct {
	Reason string
}

func (e *IncompatibleWorkerError) Error() string {
	return "incompatible worker: " + e.Reason
}

// BuildFailedError reports a failed build step
type BuildFailedError struct {
	ExitCode int
	Err      error
}

func (e *BuildFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build failed: %v", e.Err)
	}
	return fmt.Sprintf("build failed with exit code %d", e.ExitCode)
}

func (e *BuildFailedError) Unwrap() error {
	return e.Err
}

// EnumerationError reports a failed publisher inspection
type EnumerationError struct {
	ExitCode int
	Err      error
}

func (e *EnumerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publisher inspection failed (exit code %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("publisher inspection failed with exit code %d", e.ExitCode)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// PublishError reports a publish run that did not end in success. ExitCode
// is the final code: the worker's own code, or ExitFailedToBuildArtifacts
// when activities failed but the worker exited cleanly.
type PublishError struct {
	ExitCode int
	Err      error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publishing failed (exit code %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("publishing failed with exit code %d", e.ExitCode)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
