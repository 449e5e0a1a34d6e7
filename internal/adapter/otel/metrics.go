package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "relayforge"

// Metrics holds all RelayForge metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	TasksCreated      metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksFailed       metric.Int64Counter
	Invocations       metric.Int64Counter
	InvocationLatency metric.Float64Histogram
	IncidentsResolved metric.Int64Counter
	IncidentsFailed   metric.Int64Counter
	TrafficDropped    metric.Int64Counter
	RateLimited       metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TasksCreated, "relayforge.tasks.created", "Number of tasks accepted by an agent"},
		{&m.TasksCompleted, "relayforge.tasks.completed", "Number of tasks completed"},
		{&m.TasksFailed, "relayforge.tasks.failed", "Number of tasks failed"},
		{&m.Invocations, "relayforge.invocations", "Number of remote skill invocations"},
		{&m.IncidentsResolved, "relayforge.incidents.resolved", "Number of incidents resolved"},
		{&m.IncidentsFailed, "relayforge.incidents.failed", "Number of incidents failed"},
		{&m.TrafficDropped, "relayforge.traffic.dropped", "Traffic messages dropped for slow subscribers"},
		{&m.RateLimited, "relayforge.http.rate_limited", "Requests rejected by the rate limiter"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.InvocationLatency, err = meter.Float64Histogram("relayforge.invocation.latency_ms",
		metric.WithDescription("Remote skill invocation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// TaskCreated records a task accepted for skill.
func (m *Metrics) TaskCreated(ctx context.Context, skill string) {
	if m == nil {
		return
	}
	m.TasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("skill", skill)))
}

// TaskFinished records a task reaching a terminal state.
func (m *Metrics) TaskFinished(ctx context.Context, skill string, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("skill", skill))
	if ok {
		m.TasksCompleted.Add(ctx, 1, attrs)
		return
	}
	m.TasksFailed.Add(ctx, 1, attrs)
}

// Invocation records one remote call with its outcome and latency.
func (m *Metrics) Invocation(ctx context.Context, target, skill, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("skill", skill),
		attribute.String("outcome", outcome),
	)
	m.Invocations.Add(ctx, 1, attrs)
	m.InvocationLatency.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// IncidentFinished records an incident reaching a terminal state.
func (m *Metrics) IncidentFinished(ctx context.Context, incidentType string, resolved bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("incident_type", incidentType))
	if resolved {
		m.IncidentsResolved.Add(ctx, 1, attrs)
		return
	}
	m.IncidentsFailed.Add(ctx, 1, attrs)
}

// TrafficDrop records messages dropped by the traffic monitor.
func (m *Metrics) TrafficDrop(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.TrafficDropped.Add(ctx, n)
}

// RateLimit records a rejected request.
func (m *Metrics) RateLimit(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}
