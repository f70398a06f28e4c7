package validation

import "github.com/rendis/stepflow/pkg/schema"

// successors returns the indexes the driver may move to after step i.
func successors(wf *schema.Workflow, i int) []int {
	next := i + 1
	cond, ok := decodeCondition(wf.Steps[i])
	if !ok {
		return []int{next}
	}

	var out []int
	linear := false
	for _, target := range []string{cond.OnTrue, cond.OnFalse} {
		if j := wf.StepIndex(target); target != "" && j >= 0 {
			out = append(out, j)
		} else {
			linear = true
		}
	}
	if linear {
		out = append(out, next)
	}
	return out
}

func decodeCondition(step schema.Step) (*schema.ConditionConfig, bool) {
	if step.Type != schema.StepTypeCondition {
		return nil, false
	}
	cfg, err := schema.DecodeConfig(step)
	if err != nil {
		return nil, false
	}
	return cfg.(*schema.ConditionConfig), true
}

// validateGraph walks the step graph from the first step. Steps no path
// reaches get a warning, as do backward branches, since those loop until
// a condition changes or the step budget runs out.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	n := len(wf.Steps)
	if n == 0 {
		return result
	}

	reachable := make([]bool, n)
	reachable[0] = true
	queue := []int{0}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range successors(wf, i) {
			if j <= i && j < n {
				result.Warnf(schema.StepPath(i, "config"),
					"step %q branches back to %q; the run repeats until the condition changes", wf.Steps[i].ID, wf.Steps[j].ID)
			}
			if j < n && !reachable[j] {
				reachable[j] = true
				queue = append(queue, j)
			}
		}
	}

	for i, step := range wf.Steps {
		if !reachable[i] {
			result.Warnf(schema.StepPath(i, ""),
				"step %q is unreachable from the first step", step.ID)
		}
	}
	return result
}
