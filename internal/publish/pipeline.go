// Package publish implements the publish command: compatibility check,
// build, publisher inspection and selection, and the publish run itself.
//
// Each stage converts its own failures into a Result. The one exception is
// *IncompatibleWorkerError, which travels up to Pipeline.Run and is
// rendered there with the worker version from the compatibility check.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/validation"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// Options are the publish command inputs
type Options struct {
	// ProjectPath is the descriptor file or directory. Empty searches the
	// working directory.
	ProjectPath string
	// Publisher is the requested publisher; empty prompts.
	Publisher string
	// OutputPath defaults to the working directory.
	OutputPath      string
	WaitForDebugger bool

	// RunID is generated when empty.
	RunID            string
	HandshakeTimeout time.Duration
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Runner   worker.Runner
	Prompter Prompter
	Reporter Reporter
	Recorder Recorder
	Tracer   trace.Tracer
}

// Pipeline runs the publish stages in order
type Pipeline struct {
	prechecker   *Prechecker
	builder      *BuildInvoker
	enumerator   *Enumerator
	selector     *Selector
	orchestrator *Orchestrator

	reporter Reporter
	recorder Recorder
	tracer   trace.Tracer
}

// runState is what one run has learned so far
type runState struct {
	proj   *project.Project
	compat *worker.CompatibilityResult
}

// NewPipeline wires the stages around one runner
func NewPipeline(d Deps) *Pipeline {
	if d.Reporter == nil {
		d.Reporter = nopReporter{}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	tracer := orNoopTracer(d.Tracer)

	return &Pipeline{
		prechecker:   NewPrechecker(d.Runner, tracer),
		builder:      NewBuildInvoker(d.Runner, tracer),
		enumerator:   NewEnumerator(d.Runner, d.Recorder, tracer),
		selector:     NewSelector(d.Prompter, d.Reporter),
		orchestrator: NewOrchestrator(d.Runner, d.Reporter, d.Recorder, tracer),
		reporter:     d.Reporter,
		recorder:     d.Recorder,
		tracer:       tracer,
	}
}

// Run executes the publish command and returns its result
func (p *Pipeline) Run(ctx context.Context, opts Options) Result {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	ctx = logger.WithValue(ctx, logger.ContextKeyRunID, opts.RunID)

	ctx, span := p.tracer.Start(ctx, "publish")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", opts.RunID))

	st := &runState{}
	res, err := p.run(ctx, opts, st)
	if err != nil {
		var incompat *IncompatibleWorkerError
		if !errors.As(err, &incompat) {
			res = p.fail(ctx, err)
		} else if st.compat == nil {
			res = p.fail(ctx, fmt.Errorf("%w: incompatible worker reported without compatibility metadata", ErrInvariant))
		} else {
			compat := *st.compat
			compat.Reason = incompat.Reason
			res = IncompatibleResult(&compat, st.proj.Worker.MinVersion, err)
			p.reporter.Failure(res.Message)
		}
	}

	span.SetAttributes(attribute.Int("exit_code", res.Code))
	if res.Err != nil {
		recordSpanError(span, res.Err)
	}
	p.recorder.ObserveResult(res.Code)
	logger.InfoContext(ctx, "publish finished", "exit_code", res.Code, "message", res.Message)
	return res
}

// run executes the stages. Only an *IncompatibleWorkerError is returned as
// an error; every other failure is already a Result.
func (p *Pipeline) run(ctx context.Context, opts Options, st *runState) (Result, error) {
	proj, err := loadProject(opts.ProjectPath)
	if err != nil {
		return p.fail(ctx, err), nil
	}
	st.proj = proj
	logger.InfoContext(ctx, "publishing project", "project", proj.Name, "path", proj.Path)

	outputPath, err := validation.ResolveOutputPath(opts.OutputPath)
	if err != nil {
		return p.fail(ctx, err), nil
	}

	var compat *worker.CompatibilityResult
	err = p.stage(StagePrecheck, func() error {
		var err error
		compat, err = p.prechecker.Check(ctx, proj)
		return err
	})
	if err != nil {
		return p.fail(ctx, err), nil
	}
	st.compat = compat
	if !compat.IsCompatible {
		res := IncompatibleResult(compat, proj.Worker.MinVersion, nil)
		p.reporter.Failure(res.Message)
		return res, nil
	}

	p.reporter.Status("Building project...")
	if err := p.stage(StageBuild, func() error { return p.builder.Invoke(ctx, proj) }); err != nil {
		return p.fail(ctx, err), nil
	}

	if opts.Publisher != "" {
		p.reporter.Status("Getting publisher...")
	} else {
		p.reporter.Status("Getting publishers...")
	}
	var names []string
	err = p.stage(StageEnumerate, func() error {
		var err error
		names, err = p.enumerator.Enumerate(ctx, proj, compat, worker.StartOptions{
			RunID:            opts.RunID,
			HandshakeTimeout: opts.HandshakeTimeout,
		})
		return err
	})
	if err != nil {
		return p.escalate(ctx, err)
	}

	var publisher string
	err = p.stage(StageSelect, func() error {
		var err error
		publisher, err = p.selector.Resolve(ctx, opts.Publisher, names)
		return err
	})
	if err != nil {
		return p.fail(ctx, err), nil
	}
	ctx = logger.WithValue(ctx, logger.ContextKeyPublisher, publisher)

	p.reporter.Status(fmt.Sprintf("Generating artifacts for '%s' publisher...", publisher))
	var outcome *PublishOutcome
	err = p.stage(StagePublish, func() error {
		var err error
		outcome, err = p.orchestrator.Publish(ctx, proj, compat, PublishRequest{
			Publisher:        publisher,
			OutputPath:       outputPath,
			WaitForDebugger:  opts.WaitForDebugger,
			RunID:            opts.RunID,
			HandshakeTimeout: opts.HandshakeTimeout,
		})
		if err == nil && outcome.ExitCode != ExitSuccess {
			err = &PublishError{ExitCode: outcome.ExitCode}
		}
		return err
	})
	if err != nil {
		return p.escalate(ctx, err)
	}

	res := SuccessResult(outputPath)
	p.reporter.Success(res.Message)
	return res, nil
}

// stage runs fn and records its duration
func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.recorder.ObserveStage(name, time.Since(start), err)
	return err
}

// escalate lets an incompatible worker through and maps everything else.
func (p *Pipeline) escalate(ctx context.Context, err error) (Result, error) {
	var incompat *IncompatibleWorkerError
	if errors.As(err, &incompat) {
		return Result{}, err
	}
	return p.fail(ctx, err), nil
}

func (p *Pipeline) fail(ctx context.Context, err error) Result {
	res := MapError(err)
	if res.Code == ExitCancelled {
		p.reporter.Warn(res.Message)
	} else {
		p.reporter.Failure(res.Message)
	}
	logger.ErrorContext(ctx, "publish failed", "exit_code", res.Code, "error", err)
	return res
}

func loadProject(path string) (*project.Project, error) {
	found, err := project.Find(path, "")
	if err != nil {
		return nil, err
	}
	proj, err := project.Load(found)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", project.ErrProjectNotFound, err)
	}
	return proj, nil
}
