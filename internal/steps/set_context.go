package steps

import (
	"context"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

// SetContextExecutor emits config.values with string values interpolated
// against the context as it was before this step.
type SetContextExecutor struct{}

func (SetContextExecutor) Type() schema.StepType { return schema.StepTypeSetContext }

func (SetContextExecutor) Execute(_ context.Context, step schema.Step, runCtx map[string]any) Result {
	cfg, err := decode[*schema.SetContextConfig](step)
	if err != nil {
		return fail(err)
	}

	out := make(map[string]any, len(cfg.Values))
	for k, v := range cfg.Values {
		if s, ok := v.(string); ok {
			out[k] = expressions.InterpolateString(s, runCtx)
			continue
		}
		out[k] = v
	}
	return succeed(out)
}
