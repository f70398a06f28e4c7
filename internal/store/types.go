package store

import (
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// RunUpdate holds the fields to change on a run. Nil fields are left as is.
type RunUpdate struct {
	Status      *schema.RunStatus
	CurrentStep *int
	Context     map[string]any
	Error       *string
	CompletedAt *time.Time
}

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	UserID      string
	TriggerKind schema.TriggerKind
	Enabled     *bool
	Limit       int
	Offset      int
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	WorkflowID string
	Status     *schema.RunStatus
	Since      *time.Time
	Limit      int
	Offset     int
}
