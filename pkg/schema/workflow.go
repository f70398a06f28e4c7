package schema

import (
	"maps"
	"time"
)

// TriggerKind enumerates what starts a workflow run.
type TriggerKind string

const (
	TriggerManual       TriggerKind = "manual"
	TriggerSchedule     TriggerKind = "schedule"
	TriggerWebhook      TriggerKind = "webhook"
	TriggerTaskComplete TriggerKind = "task_complete"
	TriggerMessage      TriggerKind = "message"
)

// Valid reports whether k is a known trigger kind.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerManual, TriggerSchedule, TriggerWebhook, TriggerTaskComplete, TriggerMessage:
		return true
	}
	return false
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeAgentCall  StepType = "agent_call"
	StepTypeCondition  StepType = "condition"
	StepTypeTransform  StepType = "transform"
	StepTypeDelay      StepType = "delay"
	StepTypeWebhook    StepType = "webhook"
	StepTypeSetContext StepType = "set_context"
)

// StepTypes lists every supported step type.
var StepTypes = []StepType{
	StepTypeAgentCall,
	StepTypeCondition,
	StepTypeTransform,
	StepTypeDelay,
	StepTypeWebhook,
	StepTypeSetContext,
}

// Workflow is a user-authored definition. The executor treats it as read-only.
type Workflow struct {
	ID            string         `json:"id" yaml:"id"`
	UserID        string         `json:"user_id" yaml:"user_id"`
	Name          string         `json:"name" yaml:"name"`
	TriggerKind   TriggerKind    `json:"trigger_kind" yaml:"trigger_kind"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty" yaml:"trigger_config,omitempty"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	Steps         []Step         `json:"steps" yaml:"steps"`
	CreatedAt     time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"-"`
}

// StepIndex returns the position of the step with the given id, or -1.
func (w *Workflow) StepIndex(id string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// Step describes a single typed unit of work within a workflow.
//
// OnSuccess and OnFailure are carried for compatibility with stored
// definitions but are not used for routing: condition steps branch through
// ConditionConfig.OnTrue / OnFalse.
type Step struct {
	ID        string         `json:"id" yaml:"id"`
	Type      StepType       `json:"type" yaml:"type"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	OnSuccess string         `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure string         `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// WorkflowRun is the mutable execution record of one workflow run.
type WorkflowRun struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      RunStatus      `json:"status"`
	CurrentStep int            `json:"current_step"`
	Context     map[string]any `json:"context"`
	Error       *string        `json:"error"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ContextKeyLastOutput is the reserved context key holding the most recent step output.
const ContextKeyLastOutput = "_last_output"

// ContextKeyTrigger is the reserved context key holding trigger metadata.
const ContextKeyTrigger = "_trigger"

// CloneContext returns a shallow copy of src; a nil src yields an empty map.
func CloneContext(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return maps.Clone(src)
}
