package publish

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/validation"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// Prechecker asks the worker whether it can run and serve a session
type Prechecker struct {
	runner worker.Runner
	tracer trace.Tracer
}

// NewPrechecker creates a Prechecker
func NewPrechecker(runner worker.Runner, tracer trace.Tracer) *Prechecker {
	return &Prechecker{runner: runner, tracer: orNoopTracer(tracer)}
}

// Check runs the capability probe
func (p *Prechecker) Check(ctx context.Context, proj *project.Project) (*worker.CompatibilityResult, error) {
	ctx, span := p.tracer.Start(ctx, "publish.precheck")
	defer span.End()

	compat, err := p.runner.CheckCompatibility(ctx, proj)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("worker.compatible", compat.IsCompatible),
		attribute.Bool("worker.session", compat.SupportsSession),
		attribute.String("worker.version", compat.WorkerVersion),
	)
	logger.DebugContext(ctx, "worker compatibility",
		"compatible", compat.IsCompatible,
		"session", compat.SupportsSession,
		"version", compat.WorkerVersion,
		"reason", compat.Reason)
	return compat, nil
}

// BuildInvoker runs the project's build step
type BuildInvoker struct {
	runner worker.Runner
	tracer trace.Tracer
}

// NewBuildInvoker creates a BuildInvoker
func NewBuildInvoker(runner worker.Runner, tracer trace.Tracer) *BuildInvoker {
	return &BuildInvoker{runner: runner, tracer: orNoopTracer(tracer)}
}

// Invoke runs the build. A nonzero exit code is a *BuildFailedError.
func (b *BuildInvoker) Invoke(ctx context.Context, proj *project.Project) error {
	ctx, span := b.tracer.Start(ctx, "publish.build")
	defer span.End()

	code, err := b.runner.Build(ctx, proj)
	span.SetAttributes(attribute.Int("build.exit_code", code))
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		recordSpanError(span, err)
		return &BuildFailedError{ExitCode: code, Err: err}
	}
	if code != 0 {
		err := &BuildFailedError{ExitCode: code}
		recordSpanError(span, err)
		return err
	}
	return nil
}

// Enumerator lists publishers by running the worker in inspect mode
type Enumerator struct {
	runner   worker.Runner
	recorder Recorder
	tracer   trace.Tracer
}

// NewEnumerator creates an Enumerator
func NewEnumerator(runner worker.Runner, recorder Recorder, tracer trace.Tracer) *Enumerator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Enumerator{runner: runner, recorder: recorder, tracer: orNoopTracer(tracer)}
}

// Enumerate launches an inspect-mode worker, asks for its publishers, stops
// it and waits for its exit. Launch and session failures are an
// *EnumerationError; a worker without session support is an
// *IncompatibleWorkerError.
func (e *Enumerator) Enumerate(ctx context.Context, proj *project.Project, compat *worker.CompatibilityResult, opts worker.StartOptions) ([]string, error) {
	if err := requireSession(compat); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "publish.enumerate")
	defer span.End()
	ctx = logger.WithValue(ctx, logger.ContextKeyWorkerMode, string(worker.ModeInspect))

	opts.Mode = worker.ModeInspect
	opts.Publisher = ""
	opts.OutputPath = ""
	proc, err := e.runner.Start(ctx, proj, opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, &EnumerationError{ExitCode: -1, Err: err}
	}

	session, err := proc.Session(ctx)
	if err != nil {
		code, _ := proc.Wait(ctx)
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		e.recorder.ObserveWorkerExit(string(worker.ModeInspect), code)
		recordSpanError(span, err)
		return nil, &EnumerationError{ExitCode: code, Err: err}
	}

	names, listErr := session.ListPublishers(ctx)
	if err := session.RequestStop(ctx); err != nil {
		logger.WarnContext(ctx, "stopping inspect worker", "error", err)
	}
	code, waitErr := proc.Wait(ctx)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if waitErr != nil {
		recordSpanError(span, waitErr)
		return nil, &EnumerationError{ExitCode: code, Err: waitErr}
	}
	e.recorder.ObserveWorkerExit(string(worker.ModeInspect), code)
	span.SetAttributes(attribute.Int("worker.exit_code", code))

	if listErr != nil {
		recordSpanError(span, listErr)
		return nil, &EnumerationError{ExitCode: code, Err: listErr}
	}
	if code != 0 {
		err := &EnumerationError{ExitCode: code}
		recordSpanError(span, err)
		return nil, err
	}

	names = cleanPublisherNames(ctx, names)
	if len(names) == 0 {
		recordSpanError(span, ErrNoPublishers)
		return nil, &EnumerationError{ExitCode: code, Err: ErrNoPublishers}
	}
	span.SetAttributes(attribute.StringSlice("publishers", names))
	return names, nil
}

// cleanPublisherNames drops duplicates and names that cannot be passed back
// to the worker, keeping the worker's order.
func cleanPublisherNames(ctx context.Context, names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := validation.ValidatePublisherName(name); err != nil {
			logger.WarnContext(ctx, "ignoring publisher", "publisher", name, "error", err)
			continue
		}
		out = append(out, name)
	}
	return out
}

// Selector resolves the publisher to run
type Selector struct {
	prompter Prompter
	reporter Reporter
}

// NewSelector creates a Selector
func NewSelector(prompter Prompter, reporter Reporter) *Selector {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Selector{prompter: prompter, reporter: reporter}
}

// Resolve returns requested when it is one of names. Otherwise the operator
// picks one; a requested name that is not offered is reported first.
func (s *Selector) Resolve(ctx context.Context, requested string, names []string) (string, error) {
	if requested != "" && slices.Contains(names, requested) {
		return requested, nil
	}
	if requested != "" {
		s.reporter.Warn(fmt.Sprintf("The specified publisher '%s' was not found.", requested))
	}
	if s.prompter == nil {
		return "", fmt.Errorf("a publisher must be chosen from: %v", names)
	}

	choice, err := s.prompter.Select(ctx, "Select a publisher:", names)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", ErrCancelled
		}
		return "", err
	}
	if !slices.Contains(names, choice) {
		return "", fmt.Errorf("%w: prompt returned %q which was not offered", ErrInvariant, choice)
	}
	return choice, nil
}

// requireSession fails for workers that cannot open a session.
func requireSession(compat *worker.CompatibilityResult) error {
	if compat == nil {
		return fmt.Errorf("%w: worker launched before the compatibility check", ErrInvariant)
	}
	if !compat.SupportsSession {
		return &IncompatibleWorkerError{Reason: "the worker does not support the session protocol"}
	}
	return nil
}

func orNoopTracer(tracer trace.Tracer) trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return tracer
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
