package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Service provides OpenTelemetry tracing functionality
type Service struct {
	tracer trace.Tracer
}

// NewService uses the global tracer provider.
func NewService(serviceName string) *Service {
	return &Service{tracer: otel.Tracer(serviceName)}
}

// NewServiceWithProvider uses tp instead of the global provider.
func NewServiceWithProvider(tp trace.TracerProvider, serviceName string) *Service {
	return &Service{tracer: tp.Tracer(serviceName)}
}

// Setup installs a sampling tracer provider and the W3C propagator as
// globals. The returned function flushes and stops the provider.
func Setup(enabled bool, sampleRate float64) func(context.Context) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if !enabled {
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

func (s *Service) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, opts...)
}

// Trace runs fn inside a span named name and records its error.
func (s *Service) Trace(ctx context.Context, name string, attrs map[string]string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	AddSpanAttributes(span, attrs)
	err := fn(ctx)
	RecordError(span, err)
	return err
}

func AddSpanAttributes(span trace.Span, attrs map[string]string) {
	attributes := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		attributes = append(attributes, attribute.String(k, v))
	}
	span.SetAttributes(attributes...)
}

func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// ExtractTraceID returns the trace id of the span in ctx, or "".
func ExtractTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
