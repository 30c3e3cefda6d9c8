package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"golang.org/x/mod/semver"

	"github.com/HyphaGroup/pubctl/internal/validation"
)

// Find returns the absolute path of the project descriptor to use.
// An explicit path must exist. Otherwise dir is searched for a single
// *.apphost.jsonc file.
func Find(path, dir string) (string, error) {
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrProjectNotFound, path)
		}
		if info.IsDir() {
			return Find("", path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrProjectNotFound, dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), DescriptorSuffix) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrProjectNotFound, dir)
	case 1:
		abs, err := filepath.Abs(filepath.Join(dir, candidates[0]))
		if err != nil {
			return filepath.Join(dir, candidates[0]), nil
		}
		return abs, nil
	default:
		return "", &AmbiguousProjectError{Dir: dir, Candidates: candidates}
	}
}

// Load reads a JSONC project descriptor, applies defaults and validates it
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var p Project
	if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.Path = abs
	p.Dir = filepath.Dir(abs)

	applyDefaults(&p)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func applyDefaults(p *Project) {
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(p.Path), DescriptorSuffix)
	}
	if p.Runtime == "" {
		p.Runtime = RuntimeLocal
	}
	if len(p.Worker.CapabilitiesArgs) == 0 {
		p.Worker.CapabilitiesArgs = []string{"--capabilities"}
	}
	if p.Worker.MinVersion == "" {
		p.Worker.MinVersion = DefaultMinWorkerVersion
	}
}

// Validate checks the descriptor for values the launcher cannot work with
func (p *Project) Validate() error {
	if len(p.Worker.Command) == 0 || p.Worker.Command[0] == "" {
		return fmt.Errorf("worker.command is required")
	}
	switch p.Runtime {
	case RuntimeLocal:
	case RuntimeDocker:
		if err := validation.ValidateContainerRef(p.Container); err != nil {
			return fmt.Errorf("runtime docker: %w", err)
		}
	default:
		return fmt.Errorf("unknown runtime %q (want %s or %s)", p.Runtime, RuntimeLocal, RuntimeDocker)
	}
	if !semver.IsValid(CanonicalVersion(p.Worker.MinVersion)) {
		return fmt.Errorf("worker.min_version %q is not a semantic version", p.Worker.MinVersion)
	}
	return nil
}

// WorkerEnv returns the descriptor's worker environment as KEY=VALUE pairs
// in a stable order.
func (p *Project) WorkerEnv() []string {
	keys := make([]string, 0, len(p.Worker.Env))
	for k := range p.Worker.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+p.Worker.Env[k])
	}
	return env
}

// CanonicalVersion adds the "v" prefix semver expects.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
