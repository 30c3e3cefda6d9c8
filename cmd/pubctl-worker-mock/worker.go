package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
)

// Publisher names offered by the mock
const (
	publisherDocker   = "docker"
	publisherManifest = "manifest"
)

// mockWorker implements backchannel.Handler
type mockWorker struct {
	operation    string
	publisher    string
	outputPath   string
	services     []string
	failActivity string
	log          *slog.Logger

	mu        sync.Mutex
	stopped   bool
	hadFailed bool
}

var _ backchannel.Handler = (*mockWorker)(nil)

func (w *mockWorker) ListPublishers(ctx context.Context) ([]string, error) {
	return []string{publisherDocker, publisherManifest}, nil
}

func (w *mockWorker) RequestStop(ctx context.Context) {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *mockWorker) stopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *mockWorker) failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hadFailed
}

// PublishActivities writes the artifacts of the selected publisher. An
// activity named by PUBCTL_MOCK_FAIL_ACTIVITY is reported as failed and
// ends the run.
func (w *mockWorker) PublishActivities(ctx context.Context, emit func(backchannel.Activity) error) error {
	if w.operation != "publish" {
		return fmt.Errorf("worker was started for %s, not publish", w.operation)
	}

	step := func(id, running, done string, fn func() error) (bool, error) {
		if err := emit(backchannel.Activity{ID: id, StatusText: running}); err != nil {
			return false, err
		}
		err := fn()
		if err == nil && id == w.failActivity {
			err = fmt.Errorf("failure requested")
		}
		if err != nil {
			w.mu.Lock()
			w.hadFailed = true
			w.mu.Unlock()
			w.log.Error("activity failed", "activity", id, "error", err)
			return false, emit(backchannel.Activity{ID: id, StatusText: running + " failed: " + err.Error(), IsError: true})
		}
		return true, emit(backchannel.Activity{ID: id, StatusText: done, IsComplete: true})
	}

	var doc []byte
	var name string
	steps := []struct {
		id, running, done string
		fn                func() error
	}{
		{"prepare", "Preparing output directory", "Prepared output directory", func() error {
			return os.MkdirAll(w.outputPath, 0o755)
		}},
		{"generate", fmt.Sprintf("Generating %s artifacts", w.publisher), fmt.Sprintf("Generated %s artifacts", w.publisher), func() error {
			var err error
			name, doc, err = render(w.publisher, w.services)
			return err
		}},
		{"write", "Writing artifacts", "Wrote artifacts", func() error {
			return os.WriteFile(filepath.Join(w.outputPath, name), doc, 0o644)
		}},
	}

	for _, s := range steps {
		ok, err := step(s.id, s.running, s.done, s.fn)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	w.log.Info("artifacts written", "publisher", w.publisher, "file", name)
	return nil
}

type composeFile struct {
	Name     string                    `yaml:"name,omitempty"`
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string            `yaml:"image"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

type manifest struct {
	Services []manifestService `json:"services"`
}

type manifestService struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// render returns the artifact file name and content for publisher
func render(publisher string, services []string) (string, []byte, error) {
	switch publisher {
	case publisherDocker:
		c := composeFile{Services: make(map[string]composeService, len(services))}
		for _, svc := range services {
			c.Services[svc] = composeService{
				Image:       svc + ":latest",
				Environment: map[string]string{"SERVICE_NAME": svc},
			}
		}
		data, err := yaml.Marshal(c)
		return "docker-compose.yaml", data, err

	case publisherManifest:
		var m manifest
		for _, svc := range services {
			m.Services = append(m.Services, manifestService{Name: svc, Image: svc + ":latest"})
		}
		data, err := json.MarshalIndent(m, "", "  ")
		return "manifest.json", data, err

	default:
		return "", nil, fmt.Errorf("unknown publisher %q", publisher)
	}
}
