// Package telemetry sets up tracing for one pubctl invocation.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/HyphaGroup/pubctl/internal/config"
)

// InstrumentationName names the tracer handed to the pipeline.
const InstrumentationName = "github.com/HyphaGroup/pubctl"

// ShutdownFunc flushes and stops the exporter
type ShutdownFunc func(context.Context) error

// Setup returns the tracer for cfg. The none exporter yields a no-op tracer.
// Spans are exported in batches; shutdown flushes them and must be called
// before the process exits.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (trace.Tracer, ShutdownFunc, error) {
	var (
		exporter sdktrace.SpanExporter
		closer   io.Closer
		err      error
	)

	switch cfg.Exporter {
	case "", config.ExporterNone:
		return noop.NewTracerProvider().Tracer(InstrumentationName), func(context.Context) error { return nil }, nil

	case config.ExporterStdout:
		var w io.Writer = os.Stderr
		if cfg.File != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating trace directory: %w", err)
			}
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("opening trace file: %w", err)
			}
			w, closer = f, f
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))

	case config.ExporterOTLP:
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)

	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("creating %s trace exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "pubctl"),
			attribute.String("service.version", version),
		)),
	)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return err
	}
	return tp.Tracer(InstrumentationName), shutdown, nil
}
