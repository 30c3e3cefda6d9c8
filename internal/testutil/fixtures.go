package testutil

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/HyphaGroup/pubctl/internal/project"
)

// ProjectOption is a function that modifies a Project for testing.
type ProjectOption func(*project.Project)

// NewTestProject creates a test project with sensible defaults.
func NewTestProject(t *testing.T, opts ...ProjectOption) *project.Project {
	t.Helper()

	dir := t.TempDir()
	p := &project.Project{
		Path:    filepath.Join(dir, "app"+project.DescriptorSuffix),
		Dir:     dir,
		Name:    "test-project-" + uuid.New().String()[:8],
		Runtime: project.RuntimeLocal,
		Worker: project.WorkerSection{
			Command:          []string{"worker"},
			CapabilitiesArgs: []string{"--capabilities"},
			MinVersion:       project.DefaultMinWorkerVersion,
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithWorkerCommand sets the worker command line.
func WithWorkerCommand(cmd ...string) ProjectOption {
	return func(p *project.Project) {
		p.Worker.Command = cmd
	}
}

// WithBuildCommand sets the build command line.
func WithBuildCommand(cmd ...string) ProjectOption {
	return func(p *project.Project) {
		p.Build.Command = cmd
	}
}

// WithMinVersion sets the minimum worker version.
func WithMinVersion(v string) ProjectOption {
	return func(p *project.Project) {
		p.Worker.MinVersion = v
	}
}

// WithWorkerEnv adds a worker environment variable.
func WithWorkerEnv(key, value string) ProjectOption {
	return func(p *project.Project) {
		if p.Worker.Env == nil {
			p.Worker.Env = make(map[string]string)
		}
		p.Worker.Env[key] = value
	}
}

// WithDockerRuntime runs the project inside container.
func WithDockerRuntime(container string) ProjectOption {
	return func(p *project.Project) {
		p.Runtime = project.RuntimeDocker
		p.Container = container
	}
}
