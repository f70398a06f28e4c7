package steps

import (
	"context"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// DelayExecutor suspends the run for config.duration_ms. Only the calling
// goroutine waits; a cancelled context ends the wait with a failure.
type DelayExecutor struct{}

func (DelayExecutor) Type() schema.StepType { return schema.StepTypeDelay }

func (DelayExecutor) Execute(ctx context.Context, step schema.Step, _ map[string]any) Result {
	cfg, err := decode[*schema.DelayConfig](step)
	if err != nil {
		return fail(err)
	}

	d := cfg.Duration()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return succeed(map[string]any{"delayed_ms": d.Milliseconds()})
	case <-ctx.Done():
		return fail(schema.NewErrorf(schema.ErrCodeCancelled, "delay interrupted: %s", ctx.Err().Error()).WithCause(ctx.Err()))
	}
}
