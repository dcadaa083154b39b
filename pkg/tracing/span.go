package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, trace.Span) {
	return GetTracer(tracerName).Start(ctx, spanName)
}

func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if len(attrs) == 0 {
		return
	}
	span.SetAttributes(attrs...)
}

func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
