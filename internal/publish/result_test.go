package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{name: "nil", err: nil, wantCode: ExitSuccess},
		{name: "cancelled", err: ErrCancelled, wantCode: ExitCancelled, wantMessage: "cancelled"},
		{name: "context cancelled", err: fmt.Errorf("wrapped: %w", context.Canceled), wantCode: ExitCancelled},
		{name: "invariant", err: fmt.Errorf("%w: boom", ErrInvariant), wantCode: ExitInvalidCommand, wantMessage: "Internal error"},
		{name: "project not found", err: project.ErrProjectNotFound, wantCode: ExitFailedToFindProject},
		{name: "ambiguous project", err: &project.AmbiguousProjectError{Dir: "/x", Candidates: []string{"a", "b"}}, wantCode: ExitFailedToFindProject},
		{name: "incompatible", err: &IncompatibleWorkerError{Reason: "no session"}, wantCode: ExitIncompatibleWorker, wantMessage: "no session"},
		{name: "build", err: &BuildFailedError{ExitCode: 2}, wantCode: ExitFailedToBuildArtifacts, wantMessage: "--debug"},
		{name: "no publishers", err: &EnumerationError{Err: ErrNoPublishers}, wantCode: ExitFailedToBuildArtifacts, wantMessage: "No publishers"},
		{name: "inspection", err: &EnumerationError{ExitCode: 3}, wantCode: ExitFailedToBuildArtifacts, wantMessage: "exit code 3"},
		{name: "publish pass through", err: &PublishError{ExitCode: 42}, wantCode: 42, wantMessage: "exit code 42"},
		{name: "publish override", err: &PublishError{ExitCode: ExitFailedToBuildArtifacts}, wantCode: ExitFailedToBuildArtifacts},
		{name: "other", err: errors.New("bad flag"), wantCode: ExitInvalidCommand, wantMessage: "bad flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := MapError(tt.err)
			if res.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", res.Code, tt.wantCode)
			}
			if !strings.Contains(res.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want it to contain %q", res.Message, tt.wantMessage)
			}
			if !errors.Is(res.Err, tt.err) && tt.err != nil {
				t.Errorf("Err = %v, want %v", res.Err, tt.err)
			}
		})
	}
}

func TestIncompatibleResult(t *testing.T) {
	res := IncompatibleResult(&worker.CompatibilityResult{WorkerVersion: "0.5.0", Reason: "too old"}, "1.0.0", nil)
	if res.Code != ExitIncompatibleWorker {
		t.Errorf("Code = %d, want %d", res.Code, ExitIncompatibleWorker)
	}
	for _, want := range []string{"0.5.0", "1.0.0", "too old"} {
		if !strings.Contains(res.Message, want) {
			t.Errorf("Message = %q, want it to contain %q", res.Message, want)
		}
	}

	res = IncompatibleResult(&worker.CompatibilityResult{}, "1.0.0", nil)
	if !strings.Contains(res.Message, "unknown") {
		t.Errorf("Message = %q, want unknown version", res.Message)
	}
}

func TestSuccessResult(t *testing.T) {
	res := SuccessResult("/out")
	if !res.Succeeded() || res.OutputPath != "/out" {
		t.Errorf("SuccessResult() = %+v", res)
	}
	if res.Message != "Successfully published artifacts to: /out" {
		t.Errorf("Message = %q", res.Message)
	}
}
