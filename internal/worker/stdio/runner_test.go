package stdio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/project"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// The test binary doubles as a worker when PUBCTL_TEST_WORKER_MODE is set.
const (
	envHelperMode = "PUBCTL_TEST_WORKER_MODE"
	envHelperExit = "PUBCTL_TEST_WORKER_EXIT"
)

func TestMain(m *testing.M) {
	switch os.Getenv(envHelperMode) {
	case "":
		os.Exit(m.Run())
	case "capabilities":
		fmt.Println("helper worker starting")
		fmt.Println(`{"version":"1.2.0","capabilities":["backchannel.v1"]}`)
		os.Exit(0)
	case "serve":
		server := backchannel.NewServer("helper-worker", "1.2.0", &helperHandler{})
		if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
			fmt.Fprintln(os.Stderr, "helper worker:", err)
		}
		code, _ := strconv.Atoi(os.Getenv(envHelperExit))
		os.Exit(code)
	case "exit":
		fmt.Fprintln(os.Stderr, "helper worker refusing to start")
		os.Exit(3)
	case "hang":
		time.Sleep(time.Hour)
		os.Exit(0)
	}
}

type helperHandler struct{}

func (h *helperHandler) ListPublishers(ctx context.Context) ([]string, error) {
	return []string{"docker", "manifest"}, nil
}

func (h *helperHandler) PublishActivities(ctx context.Context, emit func(backchannel.Activity) error) error {
	for _, a := range []backchannel.Activity{
		{ID: "activity-1", StatusText: "Writing manifest"},
		{ID: "activity-1", StatusText: "Manifest written", IsComplete: true},
	} {
		if err := emit(a); err != nil {
			return err
		}
	}
	return nil
}

func (h *helperHandler) RequestStop(ctx context.Context) {}

func helperProject(t *testing.T, mode string, env map[string]string) *project.Project {
	t.Helper()
	workerEnv := map[string]string{envHelperMode: mode}
	for k, v := range env {
		workerEnv[k] = v
	}
	return &project.Project{
		Name:    "helper",
		Dir:     t.TempDir(),
		Runtime: project.RuntimeLocal,
		Worker: project.WorkerSection{
			Command:          []string{os.Args[0]},
			CapabilitiesArgs: []string{"--capabilities"},
			MinVersion:       "1.0.0",
			Env:              workerEnv,
		},
	}
}

func TestCheckCompatibility(t *testing.T) {
	r := NewRunner(nil, "test")

	t.Run("compatible", func(t *testing.T) {
		res, err := r.CheckCompatibility(context.Background(), helperProject(t, "capabilities", nil))
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if !res.IsCompatible || !res.SupportsSession {
			t.Errorf("CheckCompatibility() = %+v, want compatible with session support", res)
		}
		if res.WorkerVersion != "1.2.0" {
			t.Errorf("WorkerVersion = %q, want 1.2.0", res.WorkerVersion)
		}
	})

	t.Run("version too old", func(t *testing.T) {
		proj := helperProject(t, "capabilities", nil)
		proj.Worker.MinVersion = "2.0.0"
		res, err := r.CheckCompatibility(context.Background(), proj)
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if res.IsCompatible {
			t.Error("IsCompatible = true, want false")
		}
		if res.WorkerVersion != "1.2.0" {
			t.Errorf("WorkerVersion = %q, want 1.2.0", res.WorkerVersion)
		}
	})

	t.Run("probe fails", func(t *testing.T) {
		res, err := r.CheckCompatibility(context.Background(), helperProject(t, "exit", nil))
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if res.IsCompatible {
			t.Error("IsCompatible = true, want false")
		}
		if !strings.Contains(res.Reason, "code 3") {
			t.Errorf("Reason = %q, want exit code mentioned", res.Reason)
		}
	})

	t.Run("worker missing", func(t *testing.T) {
		proj := helperProject(t, "capabilities", nil)
		proj.Worker.Command = []string{"pubctl-definitely-missing-worker"}
		res, err := r.CheckCompatibility(context.Background(), proj)
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if res.IsCompatible {
			t.Error("IsCompatible = true, want false")
		}
	})
}

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    worker.Capabilities
		wantErr bool
	}{
		{
			name:   "single document",
			output: `{"version":"1.0.0","capabilities":["backchannel.v1"]}`,
			want:   worker.Capabilities{Version: "1.0.0", Capabilities: []string{"backchannel.v1"}},
		},
		{
			name:   "banner before document",
			output: "Using launch settings\n{\"version\":\"9.1.0\",\"capabilities\":[]}\n",
			want:   worker.Capabilities{Version: "9.1.0", Capabilities: []string{}},
		},
		{name: "no json", output: "usage: apphost [options]", wantErr: true},
		{name: "broken json", output: "{\"version\":", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapabilities(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCapabilities() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCapabilities() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name           string
		caps           worker.Capabilities
		minVersion     string
		wantCompatible bool
		wantSession    bool
	}{
		{"newer", worker.Capabilities{Version: "1.2.0", Capabilities: []string{"backchannel.v1"}}, "1.0.0", true, true},
		{"equal", worker.Capabilities{Version: "v1.0.0"}, "1.0.0", true, false},
		{"older", worker.Capabilities{Version: "0.9.0", Capabilities: []string{"backchannel.v1"}}, "1.0.0", false, true},
		{"default minimum", worker.Capabilities{Version: "0.1.0"}, "", false, false},
		{"prerelease below release", worker.Capabilities{Version: "1.0.0-preview.1"}, "1.0.0", false, false},
		{"invalid version", worker.Capabilities{Version: "latest"}, "1.0.0", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.caps, tt.minVersion)
			if got.IsCompatible != tt.wantCompatible {
				t.Errorf("IsCompatible = %v, want %v (reason %q)", got.IsCompatible, tt.wantCompatible, got.Reason)
			}
			if got.SupportsSession != tt.wantSession {
				t.Errorf("SupportsSession = %v, want %v", got.SupportsSession, tt.wantSession)
			}
			if got.WorkerVersion != tt.caps.Version {
				t.Errorf("WorkerVersion = %q, want %q", got.WorkerVersion, tt.caps.Version)
			}
			if !got.IsCompatible && got.Reason == "" {
				t.Error("incompatible verdict without a reason")
			}
		})
	}
}

func TestBuild(t *testing.T) {
	r := NewRunner(nil, "test")

	tests := []struct {
		name    string
		command []string
		want    int
	}{
		{"no build command", nil, 0},
		{"success", []string{"sh", "-c", "echo building"}, 0},
		{"failure", []string{"sh", "-c", "echo broken >&2; exit 2"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := helperProject(t, "capabilities", nil)
			proj.Build.Command = tt.command
			got, err := r.Build(context.Background(), proj)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Build() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStartInspect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := NewRunner(nil, "test")
	proc, err := r.Start(ctx, helperProject(t, "serve", nil), worker.StartOptions{Mode: worker.ModeInspect})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	session, err := proc.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	names, err := session.ListPublishers(ctx)
	if err != nil {
		t.Fatalf("ListPublishers() error = %v", err)
	}
	if want := []string{"docker", "manifest"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ListPublishers() = %v, want %v", names, want)
	}

	if err := session.RequestStop(ctx); err != nil {
		t.Fatalf("RequestStop() error = %v", err)
	}
	code, err := proc.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 0 {
		t.Errorf("Wait() = %d, want 0", code)
	}
}

func TestStartPublishExitCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := NewRunner(nil, "test")
	proj := helperProject(t, "serve", map[string]string{envHelperExit: "9"})
	proc, err := r.Start(ctx, proj, worker.StartOptions{
		Mode:       worker.ModePublish,
		Publisher:  "manifest",
		OutputPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	session, err := proc.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	stream, err := session.PublishingActivities(ctx)
	if err != nil {
		t.Fatalf("PublishingActivities() error = %v", err)
	}
	var got []backchannel.Activity
	for a := range stream {
		got = append(got, a)
	}
	if len(got) != 2 || !got[1].IsComplete {
		t.Errorf("activities = %+v, want two with the last complete", got)
	}

	if err := session.RequestStop(ctx); err != nil {
		t.Fatalf("RequestStop() error = %v", err)
	}
	code, err := proc.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 9 {
		t.Errorf("Wait() = %d, want 9", code)
	}
}

func TestStartWorkerExitsBeforeHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := NewRunner(nil, "test")
	proc, err := r.Start(ctx, helperProject(t, "exit", nil), worker.StartOptions{Mode: worker.ModeInspect})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = proc.Session(ctx)
	var hsErr *worker.HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Session() error = %v, want *HandshakeError", err)
	}

	code, err := proc.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != 3 {
		t.Errorf("Wait() = %d, want 3", code)
	}
}

func TestStartHandshakeTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := NewRunner(nil, "test")
	proc, err := r.Start(ctx, helperProject(t, "hang", nil), worker.StartOptions{
		Mode:             worker.ModeInspect,
		HandshakeTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = proc.Session(ctx)
	if !errors.Is(err, worker.ErrHandshakeTimeout) {
		t.Fatalf("Session() error = %v, want ErrHandshakeTimeout", err)
	}

	// The hung worker is killed, so Wait returns promptly.
	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Wait() did not return after handshake timeout")
	}
}

func TestStartInvalidOptions(t *testing.T) {
	r := NewRunner(nil, "test")
	_, err := r.Start(context.Background(), helperProject(t, "serve", nil), worker.StartOptions{Mode: worker.ModePublish})
	if err == nil {
		t.Error("Start() without publisher should return error")
	}
}
