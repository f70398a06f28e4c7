package steps

import (
	"context"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

// TransformExecutor copies context values into its output.
// Mappings whose path does not resolve are skipped. An optional jq query
// runs against the whole context: an object result is merged into the
// output, anything else is stored under "value".
type TransformExecutor struct {
	jq *expressions.GoJQEngine
}

func NewTransformExecutor(jq *expressions.GoJQEngine) *TransformExecutor {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &TransformExecutor{jq: jq}
}

func (e *TransformExecutor) Type() schema.StepType { return schema.StepTypeTransform }

func (e *TransformExecutor) Execute(ctx context.Context, step schema.Step, runCtx map[string]any) Result {
	cfg, err := decode[*schema.TransformConfig](step)
	if err != nil {
		return fail(err)
	}

	out := make(map[string]any, len(cfg.Mappings))
	for key, path := range cfg.Mappings {
		if v, found := expressions.GetNestedValue(runCtx, path); found {
			out[key] = v
		}
	}

	if cfg.Query != "" {
		v, err := e.jq.Evaluate(ctx, cfg.Query, runCtx)
		if err != nil {
			return fail(err)
		}
		if obj, ok := v.(map[string]any); ok {
			for k, val := range obj {
				out[k] = val
			}
		} else {
			out["value"] = v
		}
	}
	return succeed(out)
}
