package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "link scan")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("qrlink/commands").Start(ctx, "command."+cmdName)
	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)
	return ctx, span
}

// StartRequestSpan creates a client span for a REST call.
func StartRequestSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("qrlink/platform").Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("component", "platform"),
	)
	return ctx, span
}

// StartTransitionSpan creates a span for a session state machine event.
func StartTransitionSpan(ctx context.Context, event string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("qrlink/session").Start(ctx, "session."+event)
	span.SetAttributes(
		attribute.String("event", event),
		attribute.String("component", "session"),
	)
	return ctx, span
}

// RecordError records an error in a span and sets error status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err, or success when err is nil, and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
