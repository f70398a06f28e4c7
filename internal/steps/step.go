// Package steps holds one executor per step type and the registry the run
// driver resolves them from.
package steps

import (
	"context"
	"errors"

	"github.com/rendis/stepflow/pkg/schema"
)

// Result is the outcome of one step execution.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	// NextStep names a step id to jump to. Empty means linear advance.
	NextStep string `json:"next_step,omitempty"`
}

// Executor runs a single step against a read-only view of the run context.
// Implementations report every failure through Result and never retain
// runCtx after returning.
type Executor interface {
	Type() schema.StepType
	Execute(ctx context.Context, step schema.Step, runCtx map[string]any) Result
}

func succeed(output map[string]any) Result {
	return Result{Success: true, Output: output}
}

// fail converts err into a failed Result. Structured errors contribute
// their message only, so run errors read naturally.
func fail(err error) Result {
	var se *schema.Error
	if errors.As(err, &se) {
		return Result{Error: se.Message}
	}
	return Result{Error: err.Error()}
}

// decode returns the typed config for step.
func decode[T schema.StepConfig](step schema.Step) (T, error) {
	var zero T
	cfg, err := schema.DecodeConfig(step)
	if err != nil {
		return zero, err
	}
	typed, ok := cfg.(T)
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "step type %q does not match executor", step.Type).WithStep(step.ID)
	}
	return typed, nil
}
