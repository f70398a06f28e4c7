package diagram

import (
	"fmt"
	"slices"
	"strings"
)

// statusStyles lists overlay classes in the order they are declared.
var statusStyles = []struct{ status, style string }{
	{StatusCompleted, "fill:#2d6a2d,stroke:#1a4a1a,color:#fff"},
	{StatusFailed, "fill:#8b1a1a,stroke:#5c0e0e,color:#fff"},
	{StatusRunning, "fill:#1a5276,stroke:#0e3a52,color:#fff"},
	{StatusCancelled, "fill:#b7791a,stroke:#8a5c14,color:#fff"},
	{StatusPending, "fill:#d3d3d3,stroke:#999,color:#000"},
	{StatusSkipped, "fill:#e8e8e8,stroke:#bbb,color:#888,stroke-dasharray:5 5"},
}

// RenderMermaid renders the model as a Mermaid flowchart. Fall-through
// edges are solid, true branches are thick and false branches dotted.
// Overlay classes are emitted only when the model carries a run.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", model.Title)
	}
	b.WriteString("flowchart TD\n")

	for _, n := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNode(n))
	}
	for _, e := range model.Edges {
		from, to := mermaidSafeID(e.From), mermaidSafeID(e.To)
		switch e.Label {
		case "":
			fmt.Fprintf(&b, "    %s --> %s\n", from, to)
		case "false":
			fmt.Fprintf(&b, "    %s -.->|false| %s\n", from, to)
		default:
			fmt.Fprintf(&b, "    %s ==>|%s| %s\n", from, e.Label, to)
		}
	}

	byStatus := map[string][]string{}
	for _, n := range model.Nodes {
		if n.Status != nil {
			byStatus[n.Status.Status] = append(byStatus[n.Status.Status], mermaidSafeID(n.ID))
		}
	}
	if len(byStatus) == 0 {
		return b.String()
	}
	for _, s := range statusStyles {
		fmt.Fprintf(&b, "    classDef %s %s\n", s.status, s.style)
	}
	for _, s := range statusStyles {
		if ids := byStatus[s.status]; len(ids) > 0 {
			slices.Sort(ids)
			fmt.Fprintf(&b, "    class %s %s\n", strings.Join(ids, ","), s.status)
		}
	}
	return b.String()
}

func mermaidNode(n *Node) string {
	id := mermaidSafeID(n.ID)
	label := n.Caption()
	if !n.Virtual() {
		label = fmt.Sprintf("%d. %s", n.Position, label)
	}
	label = strings.ReplaceAll(label, `"`, "#quot;")

	open, closing := "[", "]"
	switch n.Kind {
	case NodeKindCondition:
		open, closing = "{", "}"
	case NodeKindAgent:
		open, closing = "{{", "}}"
	case NodeKindDelay:
		open, closing = "([", "])"
	case NodeKindWebhook:
		open, closing = "[/", "/]"
	case NodeKindStart, NodeKindEnd:
		open, closing = "((", "))"
	}
	return id + open + `"` + label + `"` + closing
}

// mermaidSafeID replaces characters Mermaid does not accept in ids.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
