package diagram

import (
	"fmt"
	"strings"
)

var asciiTags = map[string]string{
	StatusCompleted: "ok",
	StatusFailed:    "FAILED",
	StatusRunning:   "running",
	StatusCancelled: "cancelled",
	StatusSkipped:   "skipped",
	StatusPending:   "pending",
}

// RenderASCII renders the step rail as plain text: one numbered line per
// step, condition branches indented beneath it, and the run overlay as a
// right-aligned tag.
//
//	== Deploy ==
//	 (start)
//	    |
//	 1. check              webhook     [ok]
//	    |
//	 2. decide             condition   [running]
//	    +-- true  -> deploy
//	    +-- false -> notify
//	    ...
//	 (end)
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "== %s ==\n", model.Title)
	}

	nameWidth := 4
	for _, n := range model.Nodes {
		if !n.Virtual() && len(n.Name) > nameWidth {
			nameWidth = len(n.Name)
		}
	}

	for i, n := range model.Nodes {
		if i > 0 {
			b.WriteString("    |\n")
		}
		if n.Virtual() {
			fmt.Fprintf(&b, " (%s)\n", strings.ToLower(n.Name))
			continue
		}

		line := fmt.Sprintf("%2d. %-*s  %-11s", n.Position, nameWidth, n.Name, n.StepType)
		if n.Status != nil {
			line += " [" + asciiTags[n.Status.Status] + "]"
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')

		if n.Status != nil && n.Status.Error != "" {
			fmt.Fprintf(&b, "    !   %s\n", n.Status.Error)
		}
		for _, e := range model.EdgesFrom(n.ID) {
			if e.Label != "" {
				fmt.Fprintf(&b, "    +-- %-5s -> %s\n", e.Label, e.To)
			}
		}
	}
	return b.String()
}
