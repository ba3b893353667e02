package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/aravind-gm/oranew/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records svcErr on the span before ending it.
func endSpan(span trace.Span, svcErr *ServiceError) {
	if svcErr != nil {
		span.SetStatus(codes.Error, svcErr.Message)
		span.SetAttributes(attribute.String("error.code", svcErr.Code))
		if svcErr.Err != nil {
			span.RecordError(svcErr.Err)
		}
	}
	span.End()
}
