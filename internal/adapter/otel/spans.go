package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "relayforge"

// StartInvokeSpan starts a span for a remote skill invocation.
func StartInvokeSpan(ctx context.Context, target, skill, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.target", target),
			attribute.String("task.skill", skill),
			attribute.String("task.id", taskID),
		),
	)
}

// StartTaskSpan starts a span for a task executing inside an agent.
func StartTaskSpan(ctx context.Context, agentID, skill, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("task.skill", skill),
			attribute.String("task.id", taskID),
		),
	)
}

// StartIncidentSpan starts a span for one orchestrated incident.
func StartIncidentSpan(ctx context.Context, incidentID, incidentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "incident",
		trace.WithAttributes(
			attribute.String("incident.id", incidentID),
			attribute.String("incident.type", incidentType),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
