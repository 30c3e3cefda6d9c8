package publish

import (
	"context"
	"time"
)

// Reporter shows pipeline progress to the operator
type Reporter interface {
	// Status announces the work that is about to start.
	Status(msg string)
	Warn(msg string)
	Failure(msg string)
	Success(msg string)

	// Activity redraws one activity row.
	Activity(a TrackedActivity)
}

// Prompter asks the operator to choose one of options
type Prompter interface {
	Select(ctx context.Context, title string, options []string) (string, error)
}

// Recorder receives pipeline measurements
type Recorder interface {
	ObserveStage(stage string, d time.Duration, err error)
	ObserveActivity(a TrackedActivity)
	ObserveWorkerExit(mode string, code int)
	ObserveResult(code int)
}

// Stage names used for spans and metrics
const (
	StagePrecheck  = "precheck"
	StageBuild     = "build"
	StageEnumerate = "enumerate"
	StageSelect    = "select"
	StagePublish   = "publish"
)

type nopReporter struct{}

func (nopReporter) Status(string)            {}
func (nopReporter) Warn(string)              {}
func (nopReporter) Failure(string)           {}
func (nopReporter) Success(string)           {}
func (nopReporter) Activity(TrackedActivity) {}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration, error) {}
func (nopRecorder) ObserveActivity(TrackedActivity)           {}
func (nopRecorder) ObserveWorkerExit(string, int)             {}
func (nopRecorder) ObserveResult(int)                         {}
