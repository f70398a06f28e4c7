package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/validation"
	"github.com/rendis/stepflow/pkg/schema"
)

var defineCmd = &cobra.Command{
	Use:   "define -f <file>",
	Short: "Validate and store a workflow from a YAML or JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		userID, _ := cmd.Flags().GetString("user")
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		wf, warnings, err := defineWorkflow(ctx, a.store, file, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"workflow_id": wf.ID,
			"name":        wf.Name,
			"warnings":    warnings,
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run [workflow-id]",
	Short: "Run a stored workflow, or define and run one from a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		userID, _ := cmd.Flags().GetString("user")
		rawCtx, _ := cmd.Flags().GetString("context")
		if (len(args) == 0) == (file == "") {
			return fmt.Errorf("give either a workflow id or --file")
		}
		initial, err := parseContextFlag(rawCtx)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		var workflowID string
		if file != "" {
			wf, _, err := defineWorkflow(ctx, a.store, file, userID)
			if err != nil {
				return err
			}
			workflowID = wf.ID
		} else {
			workflowID = args[0]
		}

		initial = engine.WithTrigger(initial, engine.Trigger{
			Kind:    schema.TriggerManual,
			Payload: map[string]any{"source": "cli"},
		})
		run, err := a.driver.Run(ctx, workflowID, initial)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), run); err != nil {
			return err
		}
		if run.Status == schema.RunStatusFailed {
			return fmt.Errorf("run %s failed at step %d", run.ID, run.CurrentStep)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:       "list <workflows|runs>",
	Short:     "List stored workflows or runs",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"workflows", "runs"},
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		workflowID, _ := cmd.Flags().GetString("workflow")
		status, _ := cmd.Flags().GetString("status")
		userID, _ := cmd.Flags().GetString("user")
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		switch args[0] {
		case "workflows":
			wfs, err := a.store.ListWorkflows(ctx, store.WorkflowFilter{UserID: userID, Limit: limit})
			if err != nil {
				return err
			}
			return printWorkflows(cmd.OutOrStdout(), wfs)
		case "runs":
			filter := store.RunFilter{WorkflowID: workflowID, Limit: limit}
			if status != "" {
				st := schema.RunStatus(status)
				filter.Status = &st
			}
			runs, err := a.store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		default:
			return fmt.Errorf("unknown resource %q: must be workflows or runs", args[0])
		}
	},
}

// defineWorkflow loads, validates and stores the workflow in file.
// Validation warnings are logged and returned.
func defineWorkflow(ctx context.Context, st store.Store, file, userID string) (*schema.Workflow, []schema.ValidationIssue, error) {
	if file == "" {
		return nil, nil, fmt.Errorf("--file is required")
	}
	wf, err := loadWorkflowFile(file)
	if err != nil {
		return nil, nil, err
	}
	if userID != "" {
		wf.UserID = userID
	}

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, nil, err
	}
	result := validator.Validate(wf)
	for _, w := range result.Warnings {
		logger.Warn("workflow warning", "path", w.Path, "message", w.Message)
	}
	if err := result.ToError(); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	wf.CreatedAt, wf.UpdatedAt = now, now
	if err := st.CreateWorkflow(ctx, wf); err != nil {
		return nil, nil, err
	}
	logger.Info("workflow defined", "workflow_id", wf.ID, "name", wf.Name, "steps", len(wf.Steps))
	return wf, result.Warnings, nil
}

func printWorkflows(w io.Writer, wfs []*schema.Workflow) error {
	fmt.Fprintf(w, "%-36s  %-24s  %-13s  %-7s  %s\n", "ID", "NAME", "TRIGGER", "ENABLED", "STEPS")
	for _, wf := range wfs {
		fmt.Fprintf(w, "%-36s  %-24s  %-13s  %-7t  %d\n", wf.ID, truncate(wf.Name, 24), wf.TriggerKind, wf.Enabled, len(wf.Steps))
	}
	return nil
}

func printRuns(w io.Writer, runs []*schema.WorkflowRun) error {
	fmt.Fprintf(w, "%-36s  %-36s  %-9s  %-4s  %s\n", "ID", "WORKFLOW", "STATUS", "STEP", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-36s  %-9s  %-4d  %s\n",
			r.ID, r.WorkflowID, r.Status, r.CurrentStep, r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	defineCmd.Flags().StringP("file", "f", "", "workflow definition file (YAML or JSON)")
	defineCmd.Flags().StringP("user", "u", "", "owner of the workflow")
	_ = defineCmd.MarkFlagRequired("file")

	runCmd.Flags().StringP("file", "f", "", "define and run the workflow in this file")
	runCmd.Flags().StringP("user", "u", "", "owner when defining from --file")
	runCmd.Flags().StringP("context", "c", "", "initial run context as a JSON object")

	listCmd.Flags().IntP("limit", "l", 50, "maximum number of rows")
	listCmd.Flags().StringP("workflow", "w", "", "only runs of this workflow")
	listCmd.Flags().StringP("status", "s", "", "only runs with this status")
	listCmd.Flags().StringP("user", "u", "", "only workflows owned by this user")
}
