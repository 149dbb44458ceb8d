package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mrz1836/cutover/internal/constants"
)

// TracerName is the instrumentation scope of controller spans.
const TracerName = "github.com/mrz1836/cutover"

// Tracing owns the tracer provider and its output file.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracing exports spans as JSON to path. An empty path disables tracing.
func NewTracing(path, version string) (*Tracing, error) {
	if path == "" {
		return &Tracing{
			provider: noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //#nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", constants.NotificationSource),
			attribute.String("service.version", version),
		)),
	)
	return &Tracing{
		provider: tp,
		shutdown: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

// Tracer returns the controller tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.provider.Tracer(TracerName)
}

// Shutdown flushes pending spans and closes the output.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
