// Package tracing installs an OpenTelemetry tracer provider that writes
// spans as JSON through the stdout exporter. The executor opens one span per
// run, per stage and per fan-out sibling.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by the blueprint packages.
const InstrumentationName = "github.com/dusk-indust/blueprint"

// NewProvider builds a tracer provider exporting every span to w as soon as
// it ends.
func NewProvider(serviceName, serviceVersion string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}

var (
	initOnce sync.Once
	shutdown func(context.Context) error
	initErr  error
)

// Init installs the global tracer provider writing to outputFile, or to
// stdout when outputFile is empty. Only the first call has an effect. The
// returned function flushes and closes the exporter.
func Init(serviceName, serviceVersion, outputFile string) (func(context.Context) error, error) {
	initOnce.Do(func() {
		var w io.Writer = os.Stdout
		var f *os.File
		if outputFile != "" {
			f, initErr = os.Create(outputFile)
			if initErr != nil {
				return
			}
			w = f
		}
		var tp *sdktrace.TracerProvider
		tp, initErr = NewProvider(serviceName, serviceVersion, w)
		if initErr != nil {
			return
		}
		otel.SetTracerProvider(tp)
		shutdown = func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if f != nil {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}
			return err
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return shutdown, nil
}

// Tracer returns the blueprint tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
