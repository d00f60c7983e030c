package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "finsight/insights"

// Metrics counts generation outcomes. The zero value is not usable; build it
// with NewMetrics, GlobalMetrics or NoopMetrics.
type Metrics struct {
	inserted     otelmetric.Int64Counter
	suppressed   otelmetric.Int64Counter
	trimmed      otelmetric.Int64Counter
	passFailures otelmetric.Int64Counter
	ruleFailures otelmetric.Int64Counter
}

func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.inserted, err = meter.Int64Counter("insights_inserted_total",
		otelmetric.WithDescription("Insights persisted by generation passes")); err != nil {
		return nil, err
	}
	if m.suppressed, err = meter.Int64Counter("insights_suppressed_total",
		otelmetric.WithDescription("Candidates dropped as recent duplicates")); err != nil {
		return nil, err
	}
	if m.trimmed, err = meter.Int64Counter("insights_trimmed_total",
		otelmetric.WithDescription("Insights deleted by retention")); err != nil {
		return nil, err
	}
	if m.passFailures, err = meter.Int64Counter("insight_pass_failures_total"); err != nil {
		return nil, err
	}
	if m.ruleFailures, err = meter.Int64Counter("insight_rule_failures_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// GlobalMetrics registers the counters on the global otel meter provider,
// falling back to no-op counters if registration fails.
func GlobalMetrics() *Metrics {
	m, err := NewMetrics(otel.Meter(meterName))
	if err != nil {
		return NoopMetrics()
	}
	return m
}

func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

func (m *Metrics) Inserted(ctx context.Context, n int, severity string) {
	m.inserted.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("severity", severity)))
}

func (m *Metrics) Suppressed(ctx context.Context) {
	m.suppressed.Add(ctx, 1)
}

func (m *Metrics) Trimmed(ctx context.Context, n int) {
	if n > 0 {
		m.trimmed.Add(ctx, int64(n))
	}
}

func (m *Metrics) PassFailed(ctx context.Context, stage string) {
	m.passFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RuleFailed(ctx context.Context, rule string) {
	m.ruleFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("rule", rule)))
}
