package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "weaver"

// StartInitSpan starts a span covering one session initialization.
func StartInitSpan(ctx context.Context, sessionID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.init",
		trace.WithAttributes(attribute.Int64("session.id", sessionID)),
	)
}

// StartGitSpan starts a span for a runtime git command.
func StartGitSpan(ctx context.Context, sessionID int64, command string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.git",
		trace.WithAttributes(
			attribute.Int64("session.id", sessionID),
			attribute.String("git.command", command),
		),
	)
}

// StartSweepSpan starts a span for one cleanup sweep.
func StartSweepSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "cleanup.sweep")
}
