// Package cli wires the pubctl command line to the publish pipeline.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HyphaGroup/pubctl/internal/config"
	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/publish"
	"github.com/HyphaGroup/pubctl/internal/worker"
	"github.com/HyphaGroup/pubctl/internal/worker/stdio"
)

// Streams are the standard streams of one invocation
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// app holds the state shared by the commands of one invocation
type app struct {
	version    string
	streams    Streams
	configFile string

	v   *viper.Viper
	cfg *config.Config

	// newRunner builds the worker runner; tests replace it.
	newRunner func(version string) worker.Runner

	exitCode int
}

// Execute runs pubctl with the process arguments and returns the exit code
func Execute(version string) int {
	cmd, a := newRootCommand(version, Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	return a.run(cmd, os.Args[1:])
}

func newRootCommand(version string, streams Streams) (*cobra.Command, *app) {
	a := &app{
		version: version,
		streams: streams,
		newRunner: func(version string) worker.Runner {
			return stdio.NewRunner(nil, version)
		},
	}

	root := &cobra.Command{
		Use:           "pubctl",
		Short:         "Generate deployment artifacts for a project",
		Long:          `pubctl builds a project, asks its worker which publishers it offers and runs one of them to write deployment artifacts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.CloseSlog()
		},
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./pubctl.yaml or ~/.config/pubctl/pubctl.yaml)")
	flags.Bool("debug", false, "log debug output to stderr")
	flags.String("log-dir", "", "directory for log files")
	flags.Bool("log-json", false, "write log files as JSON")

	root.AddCommand(newPublishCommand(a), newVersionCommand(a))
	return root, a
}

// init loads the configuration and starts logging
func (a *app) init(cmd *cobra.Command) error {
	a.v = config.New(a.configFile)

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"debug":    "debug",
		"log.dir":  "log-dir",
		"log.json": "log-json",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.InitSlog(logger.Options{
		Dir:   cfg.Log.Dir,
		JSON:  cfg.Log.JSON,
		Debug: cfg.Debug,
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger.Slog().Debug("configuration loaded", "config_file", a.v.ConfigFileUsed(), "log_dir", cfg.Log.Dir)
	return nil
}

// run executes the command tree. Usage and configuration errors exit with
// ExitInvalidCommand; commands set their own code otherwise.
func (a *app) run(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(a.streams.Err, "Error:", err)
		return publish.ExitInvalidCommand
	}
	return a.exitCode
}
