package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rendis/stepflow/internal/streaming"
	"github.com/rendis/stepflow/pkg/schema"
)

// TransitionHook is called after a run changes status.
type TransitionHook func(ctx context.Context, run *schema.WorkflowRun, from schema.RunStatus)

// ValidRunTransitions lists the allowed status changes. Terminal states
// have no outgoing transitions.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusRunning: {schema.RunStatusCompleted, schema.RunStatusFailed, schema.RunStatusCancelled},
}

// RunFSM validates run status transitions and emits the matching event.
// Persisting the new status is the caller's job.
type RunFSM struct {
	hub streaming.EventHub

	mu    sync.Mutex
	after []TransitionHook
}

func NewRunFSM(hub streaming.EventHub) *RunFSM {
	if hub == nil {
		hub = streaming.Nop{}
	}
	return &RunFSM{hub: hub}
}

// OnTransition registers a hook called after every successful transition.
func (f *RunFSM) OnTransition(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = append(f.after, hook)
}

// Transition moves run from its current status to `to`.
func (f *RunFSM) Transition(ctx context.Context, run *schema.WorkflowRun, to schema.RunStatus) error {
	from := run.Status
	if !slices.Contains(ValidRunTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": run.ID, "from": string(from), "to": string(to)})
	}
	run.Status = to

	event := streaming.Event{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Type:       schema.RunEventType(to),
		Status:     string(to),
		Timestamp:  time.Now().UTC(),
	}
	if run.Error != nil {
		event.Error = *run.Error
	}
	_ = f.hub.Publish(ctx, event)

	f.mu.Lock()
	hooks := slices.Clone(f.after)
	f.mu.Unlock()
	for _, h := range hooks {
		h(ctx, run, from)
	}
	return nil
}
