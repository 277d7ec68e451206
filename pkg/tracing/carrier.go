package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const busTracerName = "pdlbus-bus"

// InjectHeaders writes the trace context of ctx into headers, allocating the
// map when needed. Transports copy the result onto the wire message.
func InjectHeaders(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartSpanFromHeaders continues the producer's trace for one consumed bus
// message.
func StartSpanFromHeaders(ctx context.Context, operationName, subject string, sequence uint64, headers map[string]string) (context.Context, trace.Span) {
	ctx = ExtractHeaders(ctx, headers)

	return GetTracer(busTracerName).Start(ctx, operationName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", subject),
			attribute.Int64("messaging.message.sequence", int64(sequence)),
		),
	)
}

func StartPublishSpan(ctx context.Context, subject string) (context.Context, trace.Span) {
	return GetTracer(busTracerName).Start(ctx, "bus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination.name", subject)),
	)
}

// TraceID returns the hex trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
