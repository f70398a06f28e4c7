package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rendis/stepflow/pkg/schema"
)

const meterName = "github.com/rendis/stepflow/internal/engine"

type driverMetrics struct {
	runsStarted   metric.Int64Counter
	runsFinished  metric.Int64Counter
	stepsExecuted metric.Int64Counter
	stepDuration  metric.Float64Histogram
}

// newDriverMetrics registers the driver instruments on m, or on the global
// meter provider when m is nil.
func newDriverMetrics(m metric.Meter) (*driverMetrics, error) {
	if m == nil {
		m = otel.Meter(meterName)
	}
	var (
		dm  driverMetrics
		err error
	)
	if dm.runsStarted, err = m.Int64Counter("stepflow.runs.started",
		metric.WithDescription("Workflow runs started")); err != nil {
		return nil, err
	}
	if dm.runsFinished, err = m.Int64Counter("stepflow.runs.finished",
		metric.WithDescription("Workflow runs that reached a terminal status")); err != nil {
		return nil, err
	}
	if dm.stepsExecuted, err = m.Int64Counter("stepflow.steps.executed",
		metric.WithDescription("Steps executed")); err != nil {
		return nil, err
	}
	if dm.stepDuration, err = m.Float64Histogram("stepflow.step.duration",
		metric.WithDescription("Step execution time"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &dm, nil
}

func (m *driverMetrics) runStarted(ctx context.Context, workflowID string) {
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow_id", workflowID)))
}

func (m *driverMetrics) runFinished(ctx context.Context, workflowID string, status schema.RunStatus) {
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("status", string(status)),
	))
}

func (m *driverMetrics) stepDone(ctx context.Context, stepType schema.StepType, success bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step_type", string(stepType)),
		attribute.Bool("success", success),
	)
	m.stepsExecuted.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
