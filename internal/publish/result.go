package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// Exit codes returned by pubctl
const (
	ExitSuccess                = 0
	ExitInvalidCommand         = 1
	ExitFailedToFindProject    = 2
	ExitIncompatibleWorker     = 4
	ExitFailedToBuildArtifacts = 5
	ExitCancelled              = 130
)

const debugHint = "For more information run with --debug."

// Result is the final outcome of one command
type Result struct {
	Code    int
	Message string
	// OutputPath is set on success.
	OutputPath string
	Err        error
}

// Succeeded reports whether the command succeeded
func (r Result) Succeeded() bool {
	return r.Code == ExitSuccess
}

// SuccessResult is the result of a completed publish
func SuccessResult(outputPath string) Result {
	return Result{
		Code:       ExitSuccess,
		Message:    "Successfully published artifacts to: " + outputPath,
		OutputPath: outputPath,
	}
}

// IncompatibleResult renders an incompatible worker verdict
func IncompatibleResult(compat *worker.CompatibilityResult, minVersion string, err error) Result {
	version := compat.WorkerVersion
	if version == "" {
		version = "unknown"
	}
	msg := fmt.Sprintf("The worker is not compatible with this version of pubctl (worker version %s, required %s or later with session support).",
		version, minVersion)
	if compat.Reason != "" {
		msg += " " + compat.Reason + "."
	}
	return Result{Code: ExitIncompatibleWorker, Message: msg, Err: err}
}

// MapError translates a stage failure into an exit code and message
func MapError(err error) Result {
	if err == nil {
		return Result{Code: ExitSuccess}
	}

	var (
		buildErr   *BuildFailedError
		enumErr    *EnumerationError
		publishErr *PublishError
		incompat   *IncompatibleWorkerError
	)

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return Result{Code: ExitCancelled, Message: "Operation cancelled.", Err: err}

	case errors.Is(err, ErrInvariant):
		return Result{Code: ExitInvalidCommand, Message: "Internal error: " + err.Error(), Err: err}

	case errors.Is(err, project.ErrProjectNotFound):
		return Result{Code: ExitFailedToFindProject, Message: "Project file not found: " + err.Error(), Err: err}

	case errors.As(err, &incompat):
		return Result{Code: ExitIncompatibleWorker, Message: "The worker is not compatible with this version of pubctl: " + incompat.Reason, Err: err}

	case errors.As(err, &buildErr):
		return Result{Code: ExitFailedToBuildArtifacts, Message: "The project could not be built. " + debugHint, Err: err}

	case errors.As(err, &enumErr):
		if errors.Is(err, ErrNoPublishers) {
			return Result{Code: ExitFailedToBuildArtifacts, Message: "No publishers were found.", Err: err}
		}
		return Result{
			Code:    ExitFailedToBuildArtifacts,
			Message: fmt.Sprintf("The publisher inspection failed with exit code %d. %s", enumErr.ExitCode, debugHint),
			Err:     err,
		}

	case errors.As(err, &publishErr):
		return Result{
			Code:    publishErr.ExitCode,
			Message: fmt.Sprintf("Publishing artifacts failed with exit code %d. %s", publishErr.ExitCode, debugHint),
			Err:     err,
		}

	default:
		return Result{Code: ExitInvalidCommand, Message: err.Error(), Err: err}
	}
}
