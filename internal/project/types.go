// Package project finds and loads the project descriptor that tells pubctl
// how to build the project and how to start its worker.
package project

import (
	"errors"
	"fmt"
	"strings"
)

// DescriptorSuffix is the file name suffix of a project descriptor.
const DescriptorSuffix = ".apphost.jsonc"

// Runtime values
const (
	RuntimeLocal  = "local"
	RuntimeDocker = "docker"
)

// DefaultMinWorkerVersion is the lowest worker version accepted when the
// descriptor does not name one.
const DefaultMinWorkerVersion = "1.0.0"

// ErrProjectNotFound is returned when no descriptor can be located.
var ErrProjectNotFound = errors.New("project file not found")

// AmbiguousProjectError is returned when auto-discovery finds more than one
// descriptor. It matches ErrProjectNotFound with errors.Is.
type AmbiguousProjectError struct {
	Dir        string
	Candidates []string
}

func (e *AmbiguousProjectError) Error() string {
	return fmt.Sprintf("multiple project files found in %s: %s; pass --project to choose one",
		e.Dir, strings.Join(e.Candidates, ", "))
}

// Is reports ErrProjectNotFound so callers can treat both cases alike.
func (e *AmbiguousProjectError) Is(target error) bool {
	return target == ErrProjectNotFound
}

// Project is a loaded project descriptor
type Project struct {
	// Path is the absolute path of the descriptor file.
	Path string `json:"-"`
	// Dir is the directory holding the descriptor; commands run there.
	Dir string `json:"-"`

	Name      string        `json:"name"`
	Runtime   string        `json:"runtime"`
	Container string        `json:"container,omitempty"`
	Build     BuildSection  `json:"build"`
	Worker    WorkerSection `json:"worker"`
}

// BuildSection describes the build step run before the worker starts
type BuildSection struct {
	Command []string `json:"command,omitempty"`
}

// WorkerSection describes how to start the project's worker
type WorkerSection struct {
	Command          []string          `json:"command"`
	CapabilitiesArgs []string          `json:"capabilities_args,omitempty"`
	MinVersion       string            `json:"min_version,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}
