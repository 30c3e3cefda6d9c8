// Package worker provides the worker process abstraction.
//
// types.go - Worker launch options and command-line contract
//
// This file contains:
// - Mode and StartOptions for worker launches
// - Capabilities printed by the capability probe
// - Args and Env builders shared by every Runner

package worker

import (
	"fmt"
	"slices"
	"time"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/project"
)

// Mode is the worker operation
type Mode string

const (
	// ModeInspect lists publishers without producing artifacts.
	ModeInspect Mode = "inspect"
	// ModePublish runs one publisher and writes artifacts.
	ModePublish Mode = "publish"
)

// Environment variables passed to the worker
const (
	EnvRunID           = "PUBCTL_RUN_ID"
	EnvWaitForDebugger = "PUBCTL_WAIT_FOR_DEBUGGER"
)

// StartOptions configures one worker launch
type StartOptions struct {
	Mode       Mode
	Publisher  string
	OutputPath string

	// WaitForDebugger asks the worker to pause until a debugger attaches.
	WaitForDebugger bool

	// RunID correlates both launches of one pubctl invocation.
	RunID string

	// HandshakeTimeout bounds the wait for the session. Zero disables it.
	HandshakeTimeout time.Duration
}

// Validate checks the options for the selected mode
func (o StartOptions) Validate() error {
	switch o.Mode {
	case ModeInspect:
		return nil
	case ModePublish:
		if o.Publisher == "" {
			return fmt.Errorf("publish mode requires a publisher")
		}
		if o.OutputPath == "" {
			return fmt.Errorf("publish mode requires an output path")
		}
		return nil
	default:
		return fmt.Errorf("unknown worker mode %q", o.Mode)
	}
}

// Capabilities is the JSON document printed by the capability probe
type Capabilities struct {
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// SupportsSession reports whether the worker serves the session protocol
func (c Capabilities) SupportsSession() bool {
	return slices.Contains(c.Capabilities, backchannel.CapabilityBackchannelV1)
}

// Args returns the worker arguments for opts
func Args(opts StartOptions) []string {
	switch opts.Mode {
	case ModePublish:
		return []string{"--publisher", opts.Publisher, "--output-path", opts.OutputPath}
	default:
		return []string{"--operation", string(ModeInspect)}
	}
}

// Command returns the full worker command line for opts
func Command(proj *project.Project, opts StartOptions) []string {
	cmd := slices.Clone(proj.Worker.Command)
	return append(cmd, Args(opts)...)
}

// Env returns the worker environment overrides for opts. Project
// variables come first so the pubctl variables win.
func Env(proj *project.Project, opts StartOptions) []string {
	env := proj.WorkerEnv()
	if opts.RunID != "" {
		env = append(env, EnvRunID+"="+opts.RunID)
	}
	if opts.WaitForDebugger {
		env = append(env, EnvWaitForDebugger+"=true")
	}
	return env
}
