// Package tracing records run, job and step spans with OpenTelemetry. Until Init or
// InitWithExporter installs a provider, spans go to the global no-op tracer.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/greboid/actrun"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	output   io.Closer
)

// Init writes spans as JSON to the named file, or to stdout when the name is "-".
func Init(serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if outputFile != "" && outputFile != "-" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating trace output: %w", err)
		}
		w = f
		closer = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return fmt.Errorf("creating trace exporter: %w", err)
	}

	if err := InitWithExporter(serviceVersion, exporter); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return err
	}

	mu.Lock()
	output = closer
	mu.Unlock()
	return nil
}

// InitWithExporter installs exporter behind a synchronous span processor, replacing any
// provider installed earlier.
func InitWithExporter(serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "actrun"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)

	mu.Lock()
	previous := provider
	provider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)
	if previous != nil {
		_ = previous.Shutdown(context.Background())
	}
	return nil
}

// Shutdown flushes pending spans and closes the trace file, if any.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp, closer := provider, output
	provider, output = nil, nil
	mu.Unlock()

	var err error
	if tp != nil {
		err = tp.Shutdown(ctx)
	}
	if closer != nil {
		if closeErr := closer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

type Span struct {
	span trace.Span
}

func StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	sp := &Span{span: span}
	sp.SetAttributes(attrs)
	return ctx, sp
}

func (s *Span) SetAttributes(attrs map[string]string) {
	if s == nil || len(attrs) == 0 {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	s.span.SetAttributes(kvs...)
}

// End records err (or OK) as the span status and ends the span.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// EndWithStatus ends the span using a conclusion string rather than an error. Anything other
// than "success" or "skipped" marks the span as failed.
func (s *Span) EndWithStatus(conclusion string) {
	if s == nil {
		return
	}
	s.span.SetAttributes(attribute.String("conclusion", conclusion))
	switch conclusion {
	case "success", "skipped":
		s.span.SetStatus(codes.Ok, "")
	default:
		s.span.SetStatus(codes.Error, conclusion)
	}
	s.span.End()
}
