package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "weaver"

// Metrics holds all Weaver metric instruments.
type Metrics struct {
	SessionsCreated metric.Int64Counter
	SessionsReady   metric.Int64Counter
	SessionsFailed  metric.Int64Counter
	InitDuration    metric.Float64Histogram
	GitCommands     metric.Int64Counter
	RateLimited     metric.Int64Counter
	OrphansRemoved  metric.Int64Counter
	LogsDeleted     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.SessionsCreated, err = meter.Int64Counter("weaver.sessions.created",
		metric.WithDescription("Number of sessions created")); err != nil {
		return nil, err
	}
	if m.SessionsReady, err = meter.Int64Counter("weaver.sessions.ready",
		metric.WithDescription("Number of sessions that reached READY")); err != nil {
		return nil, err
	}
	if m.SessionsFailed, err = meter.Int64Counter("weaver.sessions.failed",
		metric.WithDescription("Number of sessions that failed initialization")); err != nil {
		return nil, err
	}
	if m.InitDuration, err = meter.Float64Histogram("weaver.session.init.duration_seconds",
		metric.WithDescription("Session initialization duration in seconds")); err != nil {
		return nil, err
	}
	if m.GitCommands, err = meter.Int64Counter("weaver.git.commands",
		metric.WithDescription("Number of runtime git commands")); err != nil {
		return nil, err
	}
	if m.RateLimited, err = meter.Int64Counter("weaver.ratelimit.rejected",
		metric.WithDescription("Number of runtime requests rejected by the rate limiter")); err != nil {
		return nil, err
	}
	if m.OrphansRemoved, err = meter.Int64Counter("weaver.cleanup.orphans_removed",
		metric.WithDescription("Number of orphan containers removed")); err != nil {
		return nil, err
	}
	if m.LogsDeleted, err = meter.Int64Counter("weaver.cleanup.logs_deleted",
		metric.WithDescription("Number of session log entries or files deleted by retention")); err != nil {
		return nil, err
	}
	return m, nil
}

// The recorder methods are nil-safe so services can run without metrics.

func (m *Metrics) SessionCreated(ctx context.Context) {
	if m != nil {
		m.SessionsCreated.Add(ctx, 1)
	}
}

func (m *Metrics) InitFinished(ctx context.Context, ok bool, seconds float64) {
	if m == nil {
		return
	}
	if ok {
		m.SessionsReady.Add(ctx, 1)
	} else {
		m.SessionsFailed.Add(ctx, 1)
	}
	m.InitDuration.Record(ctx, seconds, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) GitCommand(ctx context.Context, command string, ok bool) {
	if m != nil {
		m.GitCommands.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", command),
			attribute.Bool("ok", ok),
		))
	}
}

func (m *Metrics) RateLimitRejected(ctx context.Context) {
	if m != nil {
		m.RateLimited.Add(ctx, 1)
	}
}

func (m *Metrics) CleanupSwept(ctx context.Context, orphans, logs int64) {
	if m == nil {
		return
	}
	if orphans > 0 {
		m.OrphansRemoved.Add(ctx, orphans)
	}
	if logs > 0 {
		m.LogsDeleted.Add(ctx, logs)
	}
}
