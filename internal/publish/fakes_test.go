package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// fakeSession plays back a fixed activity stream. The stream channel is
// unbuffered so delivered counts exactly the events the consumer read.
type fakeSession struct {
	publishers []string
	listErr    error
	events     []Activity
	streamErr  error

	mu        sync.Mutex
	delivered int
	stops     int
	stopped   chan struct{}
	streamEnd chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		stopped:   make(chan struct{}),
		streamEnd: make(chan struct{}),
	}
}

func (s *fakeSession) ListPublishers(ctx context.Context) ([]string, error) {
	return s.publishers, s.listErr
}

func (s *fakeSession) PublishingActivities(ctx context.Context) (<-chan Activity, error) {
	if s.streamErr != nil {
		close(s.streamEnd)
		return nil, s.streamErr
	}
	out := make(chan Activity)
	go func() {
		defer close(s.streamEnd)
		defer close(out)
		for _, ev := range s.events {
			select {
			case out <- ev:
				s.mu.Lock()
				s.delivered++
				s.mu.Unlock()
			case <-s.stopped:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *fakeSession) RequestStop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.stops == 1 {
		close(s.stopped)
	}
	return nil
}

func (s *fakeSession) counts() (delivered, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered, s.stops
}

// waitStream blocks until the playback goroutine exits.
func (s *fakeSession) waitStream() bool {
	select {
	case <-s.streamEnd:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

var _ backchannel.Session = (*fakeSession)(nil)

type fakeProcess struct {
	session    *fakeSession
	sessionErr error
	exitCode   int
	waitErr    error

	mu    sync.Mutex
	waits int
}

func (p *fakeProcess) Session(ctx context.Context) (backchannel.Session, error) {
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.session, nil
}

func (p *fakeProcess) Wait(ctx context.Context) (int, error) {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return p.exitCode, p.waitErr
}

func (p *fakeProcess) waitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

type fakeRunner struct {
	compat    *worker.CompatibilityResult
	compatErr error
	buildCode int
	buildErr  error
	startErr  map[worker.Mode]error
	procs     map[worker.Mode]*fakeProcess

	starts []worker.StartOptions
	builds int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		compat:   compatible(),
		startErr: make(map[worker.Mode]error),
		procs:    make(map[worker.Mode]*fakeProcess),
	}
}

func compatible() *worker.CompatibilityResult {
	return &worker.CompatibilityResult{IsCompatible: true, SupportsSession: true, WorkerVersion: "1.2.0"}
}

func (r *fakeRunner) CheckCompatibility(ctx context.Context, proj *project.Project) (*worker.CompatibilityResult, error) {
	return r.compat, r.compatErr
}

func (r *fakeRunner) Build(ctx context.Context, proj *project.Project) (int, error) {
	r.builds++
	return r.buildCode, r.buildErr
}

func (r *fakeRunner) Start(ctx context.Context, proj *project.Project, opts worker.StartOptions) (worker.Process, error) {
	r.starts = append(r.starts, opts)
	if err := r.startErr[opts.Mode]; err != nil {
		return nil, err
	}
	proc, ok := r.procs[opts.Mode]
	if !ok {
		return nil, errors.New("no fake process for mode " + string(opts.Mode))
	}
	return proc, nil
}

type recordingReporter struct {
	statuses   []string
	warnings   []string
	failures   []string
	successes  []string
	activities []TrackedActivity
}

func (r *recordingReporter) Status(msg string)            { r.statuses = append(r.statuses, msg) }
func (r *recordingReporter) Warn(msg string)              { r.warnings = append(r.warnings, msg) }
func (r *recordingReporter) Failure(msg string)           { r.failures = append(r.failures, msg) }
func (r *recordingReporter) Success(msg string)           { r.successes = append(r.successes, msg) }
func (r *recordingReporter) Activity(a TrackedActivity) { r.activities = append(r.activities, a) }

type fakePrompter struct {
	choice string
	err    error

	calls   int
	title   string
	options []string
}

func (p *fakePrompter) Select(ctx context.Context, title string, options []string) (string, error) {
	p.calls++
	p.title = title
	p.options = options
	return p.choice, p.err
}

type recordingRecorder struct {
	stages  []string
	exits   []int
	results []int
}

func (r *recordingRecorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stages = append(r.stages, stage)
}
func (r *recordingRecorder) ObserveActivity(TrackedActivity) {}
func (r *recordingRecorder) ObserveWorkerExit(mode string, code int) {
	r.exits = append(r.exits, code)
}
func (r *recordingRecorder) ObserveResult(code int) { r.results = append(r.results, code) }

func running(id, text string) Activity {
	return Activity{ID: id, StatusText: text}
}

func done(id, text string) Activity {
	return Activity{ID: id, StatusText: text, IsComplete: true}
}

func failed(id, text string) Activity {
	return Activity{ID: id, StatusText: text, IsError: true}
}
