package validation

import (
	"github.com/rendis/stepflow/internal/scheduler"
	"github.com/rendis/stepflow/pkg/schema"
)

// validateSemantic checks what the JSON Schema cannot express: unique step
// ids, typed step configs, branch targets and the schedule expression.
func validateSemantic(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]int, len(wf.Steps))
	for i, step := range wf.Steps {
		if first, dup := seen[step.ID]; dup {
			result.Errorf(schema.StepPath(i, "id"),
				"duplicate step id %q (first used by steps[%d])", step.ID, first)
			continue
		}
		seen[step.ID] = i
	}

	for i := range wf.Steps {
		validateStep(wf, i, result)
	}

	if wf.TriggerKind == schema.TriggerSchedule {
		if expr, _ := wf.TriggerConfig["cron"].(string); expr != "" {
			if _, err := scheduler.ParseSchedule(expr); err != nil {
				result.Errorf("trigger_config.cron", "%s", err.Error())
			}
		}
	}
	return result
}

func validateStep(wf *schema.Workflow, i int, result *schema.ValidationResult) {
	step := wf.Steps[i]

	cfg, err := schema.DecodeConfig(step)
	if err != nil {
		msg := err.Error()
		if se, ok := err.(*schema.Error); ok {
			msg = se.Message
		}
		result.Errorf(schema.StepPath(i, "config"), "%s", msg)
		return
	}

	if step.OnSuccess != "" {
		result.Warnf(schema.StepPath(i, "on_success"),
			"on_success is ignored; condition steps branch through config.on_true and config.on_false")
	}
	if step.OnFailure != "" {
		result.Warnf(schema.StepPath(i, "on_failure"),
			"on_failure is ignored; a failed step always fails the run")
	}

	if d, ok := cfg.(*schema.DelayConfig); ok && d.DurationMs != nil && *d.DurationMs < 0 {
		result.Warnf(schema.StepPath(i, "config.duration_ms"), "negative duration_ms is treated as 0")
	}

	cond, ok := cfg.(*schema.ConditionConfig)
	if !ok {
		return
	}
	for _, b := range [...]struct{ field, target string }{{"on_true", cond.OnTrue}, {"on_false", cond.OnFalse}} {
		field, target := b.field, b.target
		if target != "" && wf.StepIndex(target) < 0 {
			result.Warnf(schema.StepPath(i, "config."+field),
				"branch target %q does not exist; the run will advance to the next step", target)
		}
	}
}
