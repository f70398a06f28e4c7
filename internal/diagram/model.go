package diagram

import "github.com/rendis/stepflow/pkg/schema"

// NodeKind classifies a diagram node by its step type.
type NodeKind string

const (
	NodeKindAgent     NodeKind = "agent"
	NodeKindCondition NodeKind = "condition"
	NodeKindTransform NodeKind = "transform"
	NodeKindDelay     NodeKind = "delay"
	NodeKindWebhook   NodeKind = "webhook"
	NodeKindContext   NodeKind = "context"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// Node status values used by the run overlay.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRunning   = "running"
	StatusCancelled = "cancelled"
	StatusPending   = "pending"
	StatusSkipped   = "skipped"
)

// Virtual node ids.
const (
	StartID = "__start__"
	EndID   = "__end__"
)

// DiagramModel is a workflow's step rail: Start, every step in definition
// order, End. Renderers draw from it without consulting the workflow.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one step, or the virtual Start/End marker.
type Node struct {
	ID   string
	Name string
	// Position is the 1-based step position; 0 for Start and End.
	Position int
	StepType schema.StepType
	Kind     NodeKind
	Status   *StatusOverlay
}

// Virtual reports whether n is the Start or End marker.
func (n *Node) Virtual() bool { return n.Kind == NodeKindStart || n.Kind == NodeKindEnd }

// Caption is the one-line label renderers use.
func (n *Node) Caption() string {
	if n.Virtual() {
		return n.Name
	}
	return n.Name + " (" + string(n.StepType) + ")"
}

// StatusOverlay carries runtime state for a node.
type StatusOverlay struct {
	Status string
	Error  string
}

// Edge is a possible transition. Label is "true" or "false" on condition
// branches and empty on fall-through edges.
type Edge struct {
	From  string
	To    string
	Label string
}

// Node returns the node with the given id, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// EdgesFrom returns the edges leaving id in model order.
func (m *DiagramModel) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range m.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}
