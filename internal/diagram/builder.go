package diagram

import "github.com/rendis/stepflow/pkg/schema"

// Build constructs a DiagramModel from a workflow and, optionally, one of
// its runs. Steps appear in definition order; every step falls through to
// the next one except where a condition names a branch target.
func Build(wf *schema.Workflow, run *schema.WorkflowRun) (*DiagramModel, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: workflow is nil")
	}
	if run != nil && run.WorkflowID != "" && wf.ID != "" && run.WorkflowID != wf.ID {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"diagram: run %s belongs to workflow %s, not %s", run.ID, run.WorkflowID, wf.ID)
	}

	nodes := make([]*Node, 0, len(wf.Steps)+2)
	nodes = append(nodes, &Node{ID: StartID, Name: "Start", Kind: NodeKindStart})
	for i, step := range wf.Steps {
		node := &Node{
			ID:       step.ID,
			Name:     stepName(step),
			Position: i + 1,
			StepType: step.Type,
			Kind:     stepTypeToKind(step.Type),
		}
		overlayStatus(node, i, run)
		nodes = append(nodes, node)
	}
	nodes = append(nodes, &Node{ID: EndID, Name: "End", Kind: NodeKindEnd})

	return &DiagramModel{
		Title: titleFor(wf),
		Nodes: nodes,
		Edges: buildEdges(wf),
	}, nil
}

func stepTypeToKind(st schema.StepType) NodeKind {
	switch st {
	case schema.StepTypeAgentCall:
		return NodeKindAgent
	case schema.StepTypeCondition:
		return NodeKindCondition
	case schema.StepTypeTransform:
		return NodeKindTransform
	case schema.StepTypeDelay:
		return NodeKindDelay
	case schema.StepTypeWebhook:
		return NodeKindWebhook
	default:
		return NodeKindContext
	}
}

func stepName(step schema.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.ID
}

// overlayStatus derives a step's state from the run record. A step whose
// id is present in the run context has produced output.
func overlayStatus(node *Node, index int, run *schema.WorkflowRun) {
	if run == nil {
		return
	}
	_, produced := run.Context[node.ID]
	current := index == run.CurrentStep

	overlay := &StatusOverlay{Status: StatusPending}
	switch {
	case current && run.Status == schema.RunStatusRunning:
		overlay.Status = StatusRunning
	case current && run.Status == schema.RunStatusFailed:
		overlay.Status = StatusFailed
		if run.Error != nil {
			overlay.Error = *run.Error
		}
	case current && run.Status == schema.RunStatusCancelled:
		overlay.Status = StatusCancelled
	case produced:
		overlay.Status = StatusCompleted
	case run.Status.Terminal():
		overlay.Status = StatusSkipped
	}
	node.Status = overlay
}

func buildEdges(wf *schema.Workflow) []Edge {
	target := func(i int) string {
		if i < len(wf.Steps) {
			return wf.Steps[i].ID
		}
		return EndID
	}

	edges := []Edge{{From: StartID, To: target(0)}}
	for i, step := range wf.Steps {
		next := target(i + 1)
		cond, ok := conditionConfig(step)
		if !ok {
			edges = append(edges, Edge{From: step.ID, To: next})
			continue
		}
		for _, b := range [...]struct{ label, to string }{{"true", cond.OnTrue}, {"false", cond.OnFalse}} {
			to := next
			if b.to != "" && wf.StepIndex(b.to) >= 0 {
				to = b.to
			}
			edges = append(edges, Edge{From: step.ID, To: to, Label: b.label})
		}
	}
	return edges
}

func conditionConfig(step schema.Step) (*schema.ConditionConfig, bool) {
	if step.Type != schema.StepTypeCondition {
		return nil, false
	}
	cfg, err := schema.DecodeConfig(step)
	if err != nil {
		return &schema.ConditionConfig{}, true
	}
	return cfg.(*schema.ConditionConfig), true
}

func titleFor(wf *schema.Workflow) string {
	if wf.Name != "" {
		return wf.Name
	}
	return "Workflow"
}
