// Package telemetry wires OpenTelemetry tracing for probe execution and
// result processing. The two stages are traced separately: the Result
// Processor handles each Check under a fresh context, so its span is not
// linked to the probe span, and notification delivery is not traced.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider manages the tracer provider lifecycle for one process.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a tracer provider that writes spans as JSON to w. A
// real deployment swaps stdouttrace for an OTLP exporter without touching
// any call site, since every caller only ever sees the trace.Tracer
// interface.
func NewProvider(serviceName string, w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(serviceName)}, nil
}

// NewNoop returns a Provider backed by the global no-op tracer, for tests
// and for deployments that don't want tracing overhead.
func NewNoop() *Provider {
	return &Provider{tracer: otel.GetTracerProvider().Tracer("monitor-engine-noop")}
}

// Tracer returns the tracer spans should be started from.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops the tracer provider. Safe to call on a Provider
// built with NewNoop.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// StartProbeSpan starts a span covering one probe execution, tagged with
// the target and region it ran against.
func (p *Provider) StartProbeSpan(ctx context.Context, targetID, region, kind string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "probe.execute",
		trace.WithAttributes(
			attribute.String("target_id", targetID),
			attribute.String("region", region),
			attribute.String("kind", kind),
		),
	)
}

// StartProcessSpan starts a span covering result processing for one check,
// the child of the probe span when the caller threads ctx through.
func (p *Provider) StartProcessSpan(ctx context.Context, targetID, checkID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "result.process",
		trace.WithAttributes(
			attribute.String("target_id", targetID),
			attribute.String("check_id", checkID),
		),
	)
}
