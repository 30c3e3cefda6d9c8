package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/metrics"
	"github.com/HyphaGroup/pubctl/internal/publish"
	"github.com/HyphaGroup/pubctl/internal/telemetry"
	"github.com/HyphaGroup/pubctl/internal/ui"
)

const shutdownTimeout = 5 * time.Second

type publishFlags struct {
	project         string
	publisher       string
	outputPath      string
	waitForDebugger bool
}

func newPublishCommand(a *app) *cobra.Command {
	var f publishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Generate deployment artifacts with one of the project's publishers",
		Example: `  pubctl publish
  pubctl publish --publisher docker --output-path ./deploy
  pubctl publish --project ./app.apphost.jsonc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.exitCode = a.publish(cmd.Context(), f)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.project, "project", "", "project descriptor or directory (default: search the working directory)")
	flags.StringVarP(&f.publisher, "publisher", "p", "", "publisher to run (default: prompt)")
	flags.StringVarP(&f.outputPath, "output-path", "o", "", "directory for generated artifacts (default: working directory)")
	flags.BoolVar(&f.waitForDebugger, "wait-for-debugger", false, "ask the worker to wait for a debugger before running")
	return cmd
}

// publish runs the pipeline and returns the process exit code
func (a *app) publish(parent context.Context, f publishFlags) int {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdown, err := telemetry.Setup(ctx, a.cfg.Telemetry, a.version)
	if err != nil {
		logger.ErrorContext(ctx, "telemetry disabled", "error", err)
		tracer, shutdown = nil, nil
	}

	recorder := metrics.New()
	console := ui.NewConsole(a.streams.Out, a.cfg.UI.RefreshInterval)

	pipeline := publish.NewPipeline(publish.Deps{
		Runner:   a.newRunner(a.version),
		Prompter: ui.NewPicker(a.streams.In, a.streams.Out, a.interactive()),
		Reporter: console,
		Recorder: recorder,
		Tracer:   tracer,
	})

	res := pipeline.Run(ctx, publish.Options{
		ProjectPath:      f.project,
		Publisher:        f.publisher,
		OutputPath:       f.outputPath,
		WaitForDebugger:  f.waitForDebugger,
		HandshakeTimeout: a.cfg.Session.HandshakeTimeout,
	})

	// flush with a fresh context; ctx may already be cancelled
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdown != nil {
		if err := shutdown(flushCtx); err != nil {
			logger.Slog().Warn("flushing traces", "error", err)
		}
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			logger.Slog().Warn("writing metrics textfile", "path", path, "error", err)
		}
	}

	return res.Code
}

// interactive reports whether both stdin and stdout are terminals
func (a *app) interactive() bool {
	in, ok := a.streams.In.(*os.File)
	if !ok || !ui.IsTerminal(in) {
		return false
	}
	out, ok := a.streams.Out.(*os.File)
	return ok && ui.IsTerminal(out)
}
