package store

import (
	"context"

	"github.com/rendis/stepflow/pkg/schema"
)

// Store is the durable workflow/run store.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Runs
	CreateRun(ctx context.Context, run *schema.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error)
	// UpdateRun applies a partial update to a run that is still running.
	// It returns NOT_FOUND for an unknown id and CONFLICT for a terminal run.
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	// CancelRun moves a running run to cancelled (compare-and-swap on status).
	CancelRun(ctx context.Context, id string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
