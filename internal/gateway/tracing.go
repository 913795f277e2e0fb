package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer emits spans across the middleware pipeline (identity resolution ->
// policy -> dispatch -> audit), per SPEC_FULL.md's tracing section. With no
// TracerProvider installed globally (the default, non-debug case)
// otel.Tracer returns a no-op implementation, so this costs nothing unless
// cmd/mcp-gateway wires a real provider in.
var tracer = otel.Tracer("github.com/roddutra/mcp-gateway/internal/gateway")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, if any, before closing it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
