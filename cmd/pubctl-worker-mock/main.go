// pubctl-worker-mock is a reference worker. It serves the pubctl session
// over stdio and writes small docker compose or manifest artifacts, which
// makes it useful for trying pubctl and for end-to-end tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/validation"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "1.0.0"

// Environment variables read by the mock
const (
	envFailActivity = "PUBCTL_MOCK_FAIL_ACTIVITY"
	envRunID        = "PUBCTL_RUN_ID"
	envDebugger     = "PUBCTL_WAIT_FOR_DEBUGGER"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("pubctl-worker-mock", pflag.ContinueOnError)
	capabilities := flags.Bool("capabilities", false, "print the worker capabilities and exit")
	operation := flags.String("operation", "publish", "worker operation: inspect or publish")
	publisher := flags.String("publisher", "", "publisher to run")
	outputPath := flags.String("output-path", "", "directory for generated artifacts")
	services := flags.StringSlice("services", []string{"api", "web"}, "services to describe in the artifacts")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// stderr is collected into the pubctl log
	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("run_id", os.Getenv(envRunID))

	if *capabilities {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"version":      Version,
			"capabilities": []string{backchannel.CapabilityBackchannelV1},
		})
		return 0
	}

	if id := os.Getenv(envRunID); id != "" {
		if err := validation.ValidateRunID(id); err != nil {
			log.Warn("ignoring malformed run id", "error", err)
		}
	}

	if os.Getenv(envDebugger) == "true" {
		log.Info("debugger wait requested; continuing without one")
	}

	w := &mockWorker{
		operation:    *operation,
		publisher:    *publisher,
		outputPath:   *outputPath,
		services:     *services,
		failActivity: os.Getenv(envFailActivity),
		log:          log,
	}
	if err := w.validate(); err != nil {
		log.Error("invalid arguments", "error", err)
		return 2
	}

	server := backchannel.NewServer("pubctl-worker-mock", Version, w)
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil && !isClosed(err) {
		log.Error("session ended", "error", err)
		return 1
	}

	if w.failed() {
		return 1
	}
	log.Info("worker exiting", "stop_requested", w.stopRequested())
	return 0
}

func isClosed(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "closed")
}

func (w *mockWorker) validate() error {
	switch w.operation {
	case "inspect":
		return nil
	case "publish":
		if w.publisher == "" {
			return fmt.Errorf("--publisher is required")
		}
		if w.outputPath == "" {
			return fmt.Errorf("--output-path is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown operation %q", w.operation)
	}
}
