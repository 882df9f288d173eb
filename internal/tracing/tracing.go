// Package tracing wires the engine's per-hop dispatch into OpenTelemetry
// spans. It is a deliberately small slice of the teacher's
// pkg/tracing.TracingManager (OTel SDK setup, stdout exporter, shutdown
// lifecycle) — the teacher's adaptive sampler and multi-exporter jaeger/
// otlp machinery has no counterpart here, since this domain's tracing
// decision is already made by spec.md's all-or-nothing TRACE_ENABLED
// switch (§4.3/§6), not a latency-driven sampling rate.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the OTel tracer provider used by the engine to emit one
// span per stage hop when tracing is enabled.
type Manager struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Manager that exports spans as JSON to w. Passing
// io.Discard is valid and is the default when no destination is
// configured — spans are still created (cheap) but never written.
func New(w io.Writer) (*Manager, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("tagflow-engine"))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Manager{
		provider: provider,
		tracer:   provider.Tracer("github.com/tagflow/tagflow/internal/engine"),
	}, nil
}

// Discard returns a Manager whose spans are created but never exported,
// used when tracing is enabled for the in-memory metrics store but no
// OTel exporter destination was configured.
func Discard() (*Manager, error) { return New(io.Discard) }

// StartHop opens a span named after the stage tag for one engine
// dispatch step, tagging it with the trace id and hop count.
func (m *Manager) StartHop(ctx context.Context, stageTag, traceID string, hops int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "stage:"+stageTag, trace.WithAttributes(
		attribute.String("tagflow.trace_id", traceID),
		attribute.Int("tagflow.hops", hops),
	))
}

// Shutdown flushes and releases the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// Global installs m as the global OTel tracer provider, matching the
// teacher's pattern of registering the configured provider process-wide
// so any library code that calls otel.Tracer(...) picks it up too.
func (m *Manager) Global() {
	otel.SetTracerProvider(m.provider)
}
