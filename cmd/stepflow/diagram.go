package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/diagram"
	"github.com/rendis/stepflow/pkg/schema"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram <workflow-id>",
	Short: "Render a workflow as Mermaid, ASCII, PNG or SVG",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		runID, _ := cmd.Flags().GetString("run")
		out, _ := cmd.Flags().GetString("output")
		if len(args) == 0 && runID == "" {
			return fmt.Errorf("give a workflow id or --run")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		var run *schema.WorkflowRun
		workflowID := ""
		if len(args) == 1 {
			workflowID = args[0]
		}
		if runID != "" {
			if run, err = a.store.GetRun(ctx, runID); err != nil {
				return err
			}
			if workflowID == "" {
				workflowID = run.WorkflowID
			}
		}
		wf, err := a.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		model, err := diagram.Build(wf, run)
		if err != nil {
			return err
		}

		data, err := renderDiagram(model, format)
		if err != nil {
			return err
		}
		if out == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Diagram written to %s\n", out)
		return nil
	},
}

func renderDiagram(model *diagram.DiagramModel, format string) ([]byte, error) {
	switch format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "ascii":
		return []byte(diagram.RenderASCII(model)), nil
	case diagram.ImagePNG, diagram.ImageSVG:
		return diagram.RenderImage(model, format)
	default:
		return nil, fmt.Errorf("unknown format %q: must be mermaid, ascii, png or svg", format)
	}
}

func init() {
	diagramCmd.Flags().StringP("format", "F", "mermaid", "output format: mermaid, ascii, png, svg")
	diagramCmd.Flags().StringP("run", "r", "", "overlay the progress of this run")
	diagramCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}
