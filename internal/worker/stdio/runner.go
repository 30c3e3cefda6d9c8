// Package stdio runs project workers as child processes and talks to them
// over their stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/HyphaGroup/pubctl/internal/launcher"
	"github.com/HyphaGroup/pubctl/internal/launcher/docker"
	"github.com/HyphaGroup/pubctl/internal/launcher/local"
	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// LauncherFactory returns the launcher for a project
type LauncherFactory func(proj *project.Project) (launcher.Launcher, error)

// DefaultLauncher picks the launcher named by the project's runtime
func DefaultLauncher(proj *project.Project) (launcher.Launcher, error) {
	switch proj.Runtime {
	case project.RuntimeDocker:
		return docker.New(proj.Container)
	case project.RuntimeLocal, "":
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", proj.Runtime)
	}
}

// Runner implements worker.Runner by launching the worker command
type Runner struct {
	launchers     LauncherFactory
	clientVersion string
}

var _ worker.Runner = (*Runner)(nil)

// NewRunner creates a runner. A nil factory uses DefaultLauncher.
func NewRunner(launchers LauncherFactory, clientVersion string) *Runner {
	if launchers == nil {
		launchers = DefaultLauncher
	}
	return &Runner{launchers: launchers, clientVersion: clientVersion}
}

// workingDir returns the directory commands run in. Container commands
// keep the container's own working directory.
func workingDir(l launcher.Launcher, proj *project.Project) string {
	if l.Name() == "docker" {
		return ""
	}
	return proj.Dir
}

// CheckCompatibility runs the worker's capability probe
func (r *Runner) CheckCompatibility(ctx context.Context, proj *project.Project) (*worker.CompatibilityResult, error) {
	l, err := r.launchers(proj)
	if err != nil {
		return &worker.CompatibilityResult{Reason: err.Error()}, nil
	}
	defer func() { _ = l.Close() }()

	cmd := append(slices.Clone(proj.Worker.Command), proj.Worker.CapabilitiesArgs...)
	res, err := l.Exec(ctx, launcher.ExecConfig{
		Cmd:        cmd,
		Env:        proj.WorkerEnv(),
		WorkingDir: workingDir(l, proj),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &worker.CompatibilityResult{Reason: err.Error()}, nil
	}
	if res.ExitCode != 0 {
		return &worker.CompatibilityResult{
			Reason: fmt.Sprintf("capability probe exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
		}, nil
	}

	caps, err := ParseCapabilities(res.Stdout)
	if err != nil {
		return &worker.CompatibilityResult{Reason: err.Error()}, nil
	}
	return Evaluate(caps, proj.Worker.MinVersion), nil
}

// ParseCapabilities decodes the probe output. Workers may print banner
// lines first, so the last line holding a JSON object is used.
func ParseCapabilities(output string) (worker.Capabilities, error) {
	var caps worker.Capabilities
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &caps); err == nil {
		return caps, nil
	}

	var last string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "{") {
			last = line
		}
	}
	if last == "" {
		return caps, fmt.Errorf("capability probe printed no JSON document")
	}
	if err := json.Unmarshal([]byte(last), &caps); err != nil {
		return caps, fmt.Errorf("parsing capability probe output: %w", err)
	}
	return caps, nil
}

// Evaluate checks the probed capabilities against the minimum version
func Evaluate(caps worker.Capabilities, minVersion string) *worker.CompatibilityResult {
	result := &worker.CompatibilityResult{
		WorkerVersion:   caps.Version,
		SupportsSession: caps.SupportsSession(),
	}

	version := project.CanonicalVersion(caps.Version)
	if !semver.IsValid(version) {
		result.Reason = fmt.Sprintf("worker reported invalid version %q", caps.Version)
		return result
	}
	if minVersion == "" {
		minVersion = project.DefaultMinWorkerVersion
	}
	if semver.Compare(version, project.CanonicalVersion(minVersion)) < 0 {
		result.Reason = fmt.Sprintf("worker version %s is older than the required %s", caps.Version, minVersion)
		return result
	}

	result.IsCompatible = true
	return result
}

// Build runs the project's build command. No command means nothing to build.
func (r *Runner) Build(ctx context.Context, proj *project.Project) (int, error) {
	if len(proj.Build.Command) == 0 {
		return 0, nil
	}

	l, err := r.launchers(proj)
	if err != nil {
		return -1, err
	}
	defer func() { _ = l.Close() }()

	res, err := l.Exec(ctx, launcher.ExecConfig{
		Cmd:        proj.Build.Command,
		WorkingDir: workingDir(l, proj),
	})
	if err != nil {
		return -1, fmt.Errorf("running build: %w", err)
	}

	logOutput(ctx, "build stdout", res.Stdout)
	logOutput(ctx, "build stderr", res.Stderr)
	return res.ExitCode, nil
}

func logOutput(ctx context.Context, source, output string) {
	if output == "" {
		return
	}
	logger.DrainLines(ctx, strings.NewReader(output), source)
}

// Start launches the worker and begins the session handshake
func (r *Runner) Start(ctx context.Context, proj *project.Project, opts worker.StartOptions) (worker.Process, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	l, err := r.launchers(proj)
	if err != nil {
		return nil, err
	}

	procCtx, kill := context.WithCancel(ctx)
	exec, err := l.ExecInteractive(procCtx, launcher.ExecConfig{
		Cmd:        worker.Command(proj, opts),
		Env:        worker.Env(proj, opts),
		WorkingDir: workingDir(l, proj),
	})
	if err != nil {
		kill()
		_ = l.Close()
		return nil, fmt.Errorf("launching worker: %w", err)
	}

	logger.DebugContext(ctx, "worker started", "mode", opts.Mode, "launcher", l.Name())

	p := newProcess(exec, kill, l, opts.HandshakeTimeout)
	go logger.DrainLines(ctx, exec.Stderr, "worker stderr")
	go p.handshake(procCtx, r.clientVersion)
	go p.reap()
	return p, nil
}
