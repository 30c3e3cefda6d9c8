package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/publish"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// probeRunner reports an incompatible worker so publish stops after the
// compatibility check without launching anything.
type probeRunner struct {
	checks int
}

func (r *probeRunner) CheckCompatibility(ctx context.Context, proj *project.Project) (*worker.CompatibilityResult, error) {
	r.checks++
	return &worker.CompatibilityResult{WorkerVersion: "0.1.0", Reason: "too old"}, nil
}

func (r *probeRunner) Build(ctx context.Context, proj *project.Project) (int, error) {
	return 0, nil
}

func (r *probeRunner) Start(ctx context.Context, proj *project.Project, opts worker.StartOptions) (worker.Process, error) {
	panic("worker must not be started")
}

func runCLI(t *testing.T, runner worker.Runner, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd, a := newRootCommand("1.2.3", Streams{In: strings.NewReader(""), Out: &stdout, Err: &stderr})
	if runner != nil {
		a.newRunner = func(string) worker.Runner { return runner }
	}
	t.Setenv("PUBCTL_LOG_DIR", t.TempDir())
	code := a.run(cmd, args)
	return code, stdout.String(), stderr.String()
}

func TestVersionFlag(t *testing.T) {
	code, out, _ := runCLI(t, nil, "--version")
	if code != 0 || !strings.Contains(out, "1.2.3") {
		t.Errorf("code = %d out = %q", code, out)
	}
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := runCLI(t, nil, "version")
	if code != 0 || !strings.HasPrefix(out, "pubctl 1.2.3 (") {
		t.Errorf("code = %d out = %q", code, out)
	}
}

func TestUnknownFlag(t *testing.T) {
	code, _, errOut := runCLI(t, nil, "publish", "--bogus")
	if code != publish.ExitInvalidCommand {
		t.Errorf("code = %d, want %d", code, publish.ExitInvalidCommand)
	}
	if !strings.Contains(errOut, "bogus") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestUnexpectedArgument(t *testing.T) {
	code, _, _ := runCLI(t, nil, "publish", "extra")
	if code != publish.ExitInvalidCommand {
		t.Errorf("code = %d, want %d", code, publish.ExitInvalidCommand)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubctl.yaml")
	if err := os.WriteFile(path, []byte("telemetry:\n  exporter: zipkin\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, nil, "--config", path, "publish")
	if code != publish.ExitInvalidCommand || !strings.Contains(errOut, "zipkin") {
		t.Errorf("code = %d stderr = %q", code, errOut)
	}
}

func TestPublishProjectNotFound(t *testing.T) {
	runner := &probeRunner{}
	missing := filepath.Join(t.TempDir(), "missing.apphost.jsonc")
	code, out, _ := runCLI(t, runner, "publish", "--project", missing)
	if code != publish.ExitFailedToFindProject {
		t.Errorf("code = %d, want %d", code, publish.ExitFailedToFindProject)
	}
	if !strings.Contains(out, "not found") {
		t.Errorf("stdout = %q", out)
	}
	if runner.checks != 0 {
		t.Errorf("checks = %d, want 0", runner.checks)
	}
}

func TestPublishIncompatibleWorker(t *testing.T) {
	dir := t.TempDir()
	proj := filepath.Join(dir, "app.apphost.jsonc")
	if err := os.WriteFile(proj, []byte(`{"worker": {"command": ["worker"]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	textfile := filepath.Join(dir, "metrics", "pubctl.prom")
	t.Setenv("PUBCTL_METRICS_TEXTFILE", textfile)

	runner := &probeRunner{}
	code, out, _ := runCLI(t, runner, "publish", "--project", proj, "-p", "docker", "-o", dir)
	if code != publish.ExitIncompatibleWorker {
		t.Errorf("code = %d, want %d", code, publish.ExitIncompatibleWorker)
	}
	if !strings.Contains(out, "0.1.0") {
		t.Errorf("stdout = %q, want worker version", out)
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), `pubctl_runs_total{code="4"} 1`) {
		t.Errorf("textfile = %s", data)
	}
}
