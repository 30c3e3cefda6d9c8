package publish

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// LaunchActivityID identifies the pseudo activity shown while the worker
// starts. It is displayed but never tracked.
const LaunchActivityID = "launch-worker"

// PublishRequest is the resolved input of a publish run
type PublishRequest struct {
	Publisher       string
	OutputPath      string
	WaitForDebugger bool
	RunID           string

	HandshakeTimeout time.Duration
}

// PublishOutcome is the result of one publish run
type PublishOutcome struct {
	// ExitCode is the final code after the override rule.
	ExitCode int
	// WorkerExitCode is the code the worker itself exited with.
	WorkerExitCode        int
	AllActivitiesFinished bool
	Tracker               *ProgressTracker
}

// Orchestrator runs the worker in publish mode and follows its activities
type Orchestrator struct {
	runner   worker.Runner
	reporter Reporter
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. reporter and recorder may be nil.
func NewOrchestrator(runner worker.Runner, reporter Reporter, recorder Recorder, tracer trace.Tracer) *Orchestrator {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		runner:   runner,
		reporter: reporter,
		recorder: recorder,
		tracer:   orNoopTracer(tracer),
		now:      time.Now,
	}
}

// Publish launches the worker, consumes its activity stream until it ends
// or the first failed activity, then stops the worker and waits for it.
//
// Once a session is open, exactly one stop request is issued and the exit
// code is awaited exactly once, after the stream is done. If any activity
// did not finish and the worker still exits 0, the outcome is
// ExitFailedToBuildArtifacts; any other worker code is kept as is.
func (o *Orchestrator) Publish(ctx context.Context, proj *project.Project, compat *worker.CompatibilityResult, req PublishRequest) (*PublishOutcome, error) {
	if err := requireSession(compat); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "publish.generate_artifacts")
	defer span.End()
	span.SetAttributes(
		attribute.String("publisher", req.Publisher),
		attribute.String("output_path", req.OutputPath),
	)
	ctx = logger.WithValue(ctx, logger.ContextKeyWorkerMode, string(worker.ModePublish))
	ctx = logger.WithValue(ctx, logger.ContextKeyPublisher, req.Publisher)

	launch := TrackedActivity{ID: LaunchActivityID, StatusText: "Launching worker", StartedAt: o.now()}
	o.reporter.Activity(launch)

	proc, err := o.runner.Start(ctx, proj, worker.StartOptions{
		Mode:             worker.ModePublish,
		Publisher:        req.Publisher,
		OutputPath:       req.OutputPath,
		WaitForDebugger:  req.WaitForDebugger,
		RunID:            req.RunID,
		HandshakeTimeout: req.HandshakeTimeout,
	})
	if err != nil {
		o.failLaunch(launch)
		recordSpanError(span, err)
		return nil, &PublishError{ExitCode: ExitFailedToBuildArtifacts, Err: err}
	}

	session, err := proc.Session(ctx)
	if err != nil {
		o.failLaunch(launch)
		code, _ := proc.Wait(ctx)
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		o.recorder.ObserveWorkerExit(string(worker.ModePublish), code)
		recordSpanError(span, err)
		if code == 0 {
			code = ExitFailedToBuildArtifacts
		}
		return nil, &PublishError{ExitCode: code, Err: err}
	}

	launch.State = StateSucceeded
	launch.EndedAt = o.now()
	o.reporter.Activity(launch)

	tracker := NewProgressTracker()
	tracker.now = o.now

	stream, streamErr := session.PublishingActivities(ctx)
	if streamErr != nil {
		logger.WarnContext(ctx, "opening activity stream", "error", streamErr)
	} else {
		o.consume(ctx, stream, tracker)
	}

	allFinished := streamErr == nil && tracker.AllFinished()

	if err := session.RequestStop(ctx); err != nil {
		logger.WarnContext(ctx, "stopping publish worker", "error", err)
	}
	workerCode, waitErr := proc.Wait(ctx)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if waitErr != nil {
		recordSpanError(span, waitErr)
		return nil, &PublishError{ExitCode: ExitFailedToBuildArtifacts, Err: waitErr}
	}
	o.recorder.ObserveWorkerExit(string(worker.ModePublish), workerCode)

	code := workerCode
	if !allFinished && code == 0 {
		code = ExitFailedToBuildArtifacts
	}

	span.SetAttributes(
		attribute.Int("worker.exit_code", workerCode),
		attribute.Int("activities", tracker.Len()),
		attribute.Bool("activities.finished", allFinished),
	)
	if !allFinished {
		logger.InfoContext(ctx, "publish ended with unfinished activities",
			"unfinished", tracker.Unfinished(), "worker_exit_code", workerCode)
	}

	return &PublishOutcome{
		ExitCode:              code,
		WorkerExitCode:        workerCode,
		AllActivitiesFinished: allFinished,
		Tracker:               tracker,
	}, nil
}

// consume applies stream events one at a time. The first failed activity
// ends consumption; later events are never read.
func (o *Orchestrator) consume(ctx context.Context, stream <-chan Activity, tracker *ProgressTracker) {
	for event := range stream {
		a := tracker.Upsert(event)
		o.reporter.Activity(a)
		o.recorder.ObserveActivity(a)
		logger.DebugContext(ctx, "activity", "id", a.ID, "state", a.State.String(), "status", a.StatusText)

		if event.IsError {
			return
		}
	}
}

func (o *Orchestrator) failLaunch(launch TrackedActivity) {
	launch.State = StateFailed
	launch.EndedAt = o.now()
	o.reporter.Activity(launch)
}
