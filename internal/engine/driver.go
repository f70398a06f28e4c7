package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/steps"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/streaming"
	"github.com/rendis/stepflow/pkg/schema"
)

// DefaultMaxSteps bounds the iterations of one run so a backwards branch
// cannot loop forever.
const DefaultMaxSteps = 10000

// Executor runs workflows and exposes their run records.
type Executor interface {
	// Run executes the workflow synchronously and returns the final run.
	Run(ctx context.Context, workflowID string, initial map[string]any) (*schema.WorkflowRun, error)
	// Cancel marks a running run as cancelled. It does not interrupt a step
	// already in progress; the driver stops before its next checkpoint.
	Cancel(ctx context.Context, runID string) error
	// Status returns the persisted run record.
	Status(ctx context.Context, runID string) (*schema.WorkflowRun, error)
}

// Config holds the optional collaborators of a Driver.
type Config struct {
	MaxSteps int
	Logger   *slog.Logger
	Hub      streaming.EventHub
	Meter    metric.Meter
}

// Driver is the sequential run interpreter. Each run executes one step at a
// time on the caller's goroutine; different runs may share a Driver.
type Driver struct {
	store    store.Store
	registry *steps.Registry
	fsm      *RunFSM
	hub      streaming.EventHub
	logger   *slog.Logger
	metrics  *driverMetrics
	maxSteps int
}

// NewDriver wires a driver to its store and step registry.
func NewDriver(s store.Store, reg *steps.Registry, cfg Config) (*Driver, error) {
	if s == nil || reg == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "driver requires a store and a step registry")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = streaming.Nop{}
	}
	m, err := newDriverMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &Driver{
		store:    s,
		registry: reg,
		fsm:      NewRunFSM(cfg.Hub),
		hub:      cfg.Hub,
		logger:   cfg.Logger,
		metrics:  m,
		maxSteps: cfg.MaxSteps,
	}, nil
}

// FSM exposes the run state machine so callers can attach hooks.
func (d *Driver) FSM() *RunFSM { return d.fsm }

func (d *Driver) Run(ctx context.Context, workflowID string, initial map[string]any) (*schema.WorkflowRun, error) {
	wf, err := d.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run := &schema.WorkflowRun{
		WorkflowID: wf.ID,
		Status:     schema.RunStatusRunning,
		Context:    schema.CloneContext(initial),
		StartedAt:  time.Now().UTC(),
	}
	if err := d.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	ctx = logging.WithRun(ctx, run.ID, wf.ID)
	d.logger.InfoContext(ctx, "run started", "workflow_name", wf.Name, "steps", len(wf.Steps))
	d.metrics.runStarted(ctx, wf.ID)
	d.publish(ctx, run, "", schema.EventRunStarted, nil)

	failure, halted := d.loop(ctx, wf, run)
	// The terminal write must land even when ctx was cancelled mid-run.
	ctx = context.WithoutCancel(ctx)
	if halted {
		return d.reloadHalted(ctx, run)
	}
	return d.finalize(ctx, run, failure)
}

// loop executes steps until the sequence ends, a step fails, or the run is
// no longer running in the store. failure is empty on success.
func (d *Driver) loop(ctx context.Context, wf *schema.Workflow, run *schema.WorkflowRun) (failure string, halted bool) {
	defer func() {
		if p := recover(); p != nil {
			failure = fmt.Sprintf("run panicked: %v", p)
			halted = false
		}
	}()

	executed := 0
	for run.CurrentStep >= 0 && run.CurrentStep < len(wf.Steps) {
		if err := ctx.Err(); err != nil {
			return fmt.Sprintf("run interrupted: %s", err.Error()), false
		}
		if executed >= d.maxSteps {
			return fmt.Sprintf("run exceeded %d steps", d.maxSteps), false
		}
		executed++

		idx := run.CurrentStep
		// The checkpoint only applies to a running row, so it doubles as
		// the status check after an external cancel.
		if err := d.store.UpdateRun(ctx, run.ID, store.RunUpdate{CurrentStep: &idx, Context: run.Context}); err != nil {
			if schema.IsCode(err, schema.ErrCodeConflict) {
				return "", true
			}
			return fmt.Sprintf("checkpoint failed: %s", errorMessage(err)), false
		}

		step := wf.Steps[idx]
		res := d.executeStep(ctx, run, step)
		if !res.Success {
			if res.Error == "" {
				res.Error = fmt.Sprintf("step %s failed", step.ID)
			}
			return res.Error, false
		}

		if res.Output != nil {
			run.Context[step.ID] = res.Output
			run.Context[schema.ContextKeyLastOutput] = res.Output
		}

		next := idx + 1
		if res.NextStep != "" {
			if j := wf.StepIndex(res.NextStep); j >= 0 {
				next = j
			} else {
				d.logger.WarnContext(logging.WithStepID(ctx, step.ID), "branch target not found, advancing linearly",
					"target", res.NextStep)
			}
		}
		run.CurrentStep = next
	}
	return "", false
}

func (d *Driver) executeStep(ctx context.Context, run *schema.WorkflowRun, step schema.Step) steps.Result {
	ctx = logging.WithStepID(ctx, step.ID)
	d.logger.DebugContext(ctx, "step started", "type", step.Type, "index", run.CurrentStep)
	d.publish(ctx, run, step.ID, schema.EventStepStarted, nil)

	start := time.Now()
	res := d.registry.Execute(ctx, step, run.Context)
	elapsed := time.Since(start)
	d.metrics.stepDone(ctx, step.Type, res.Success, elapsed)

	if res.Success {
		d.logger.DebugContext(ctx, "step completed", "duration_ms", elapsed.Milliseconds(), "next", res.NextStep)
		d.publish(ctx, run, step.ID, schema.EventStepCompleted, map[string]any{"output": res.Output})
	} else {
		d.logger.WarnContext(ctx, "step failed", "duration_ms", elapsed.Milliseconds(), "error", res.Error)
		d.publish(ctx, run, step.ID, schema.EventStepFailed, map[string]any{"error": res.Error})
	}
	return res
}

// finalize persists the terminal status. A run cancelled while its last
// step was executing keeps its cancelled status.
func (d *Driver) finalize(ctx context.Context, run *schema.WorkflowRun, failure string) (*schema.WorkflowRun, error) {
	status := schema.RunStatusCompleted
	if failure != "" {
		status = schema.RunStatusFailed
		run.Error = &failure
	}
	now := time.Now().UTC()
	update := store.RunUpdate{
		Status:      &status,
		CurrentStep: &run.CurrentStep,
		Context:     run.Context,
		Error:       run.Error,
		CompletedAt: &now,
	}
	if err := d.store.UpdateRun(ctx, run.ID, update); err != nil {
		if schema.IsCode(err, schema.ErrCodeConflict) {
			return d.reloadHalted(ctx, run)
		}
		d.logger.ErrorContext(ctx, "finalize run failed", "error", err)
		return run, err
	}
	run.CompletedAt = &now
	_ = d.fsm.Transition(ctx, run, status)
	d.metrics.runFinished(ctx, run.WorkflowID, status)

	if status == schema.RunStatusFailed {
		d.logger.InfoContext(ctx, "run failed", "current_step", run.CurrentStep, "error", failure)
	} else {
		d.logger.InfoContext(ctx, "run completed", "current_step", run.CurrentStep)
	}
	return d.Status(ctx, run.ID)
}

func (d *Driver) reloadHalted(ctx context.Context, run *schema.WorkflowRun) (*schema.WorkflowRun, error) {
	d.logger.InfoContext(ctx, "run halted by external status change", "current_step", run.CurrentStep)
	return d.store.GetRun(ctx, run.ID)
}

func (d *Driver) Cancel(ctx context.Context, runID string) error {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := d.store.CancelRun(ctx, runID); err != nil {
		return err
	}
	ctx = logging.WithRun(ctx, run.ID, run.WorkflowID)
	if err := d.fsm.Transition(ctx, run, schema.RunStatusCancelled); err != nil {
		return err
	}
	d.metrics.runFinished(ctx, run.WorkflowID, schema.RunStatusCancelled)
	d.logger.InfoContext(ctx, "run cancelled", "current_step", run.CurrentStep)
	return nil
}

func (d *Driver) Status(ctx context.Context, runID string) (*schema.WorkflowRun, error) {
	return d.store.GetRun(ctx, runID)
}

func (d *Driver) publish(ctx context.Context, run *schema.WorkflowRun, stepID, typ string, payload map[string]any) {
	err := d.hub.Publish(ctx, streaming.Event{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		StepID:     stepID,
		Type:       typ,
		Status:     string(run.Status),
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		d.logger.DebugContext(ctx, "publish event failed", "type", typ, "error", err)
	}
}

func errorMessage(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

var _ Executor = (*Driver)(nil)
