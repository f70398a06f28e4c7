package steps

import (
	"context"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

// ConditionExecutor evaluates config.expression and selects
// config.on_true or config.on_false as the next step.
type ConditionExecutor struct {
	conditions *expressions.Conditions
}

// NewConditionExecutor creates a condition executor. With a nil set only the
// restricted language is available.
func NewConditionExecutor(c *expressions.Conditions) *ConditionExecutor {
	return &ConditionExecutor{conditions: c}
}

func (e *ConditionExecutor) Type() schema.StepType { return schema.StepTypeCondition }

func (e *ConditionExecutor) Execute(ctx context.Context, step schema.Step, runCtx map[string]any) Result {
	cfg, err := decode[*schema.ConditionConfig](step)
	if err != nil {
		return fail(err)
	}

	var ok bool
	switch {
	case cfg.Language == "":
		ok = expressions.EvaluateExpression(cfg.Expression, runCtx)
	case e.conditions == nil:
		return fail(schema.NewErrorf(schema.ErrCodeValidation, "condition language %q is not enabled", cfg.Language))
	default:
		ok, err = e.conditions.Evaluate(ctx, cfg.Language, cfg.Expression, runCtx)
		if err != nil {
			return fail(err)
		}
	}

	res := succeed(map[string]any{"condition_result": ok})
	if ok {
		res.NextStep = cfg.OnTrue
	} else {
		res.NextStep = cfg.OnFalse
	}
	return res
}
