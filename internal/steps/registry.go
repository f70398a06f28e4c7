package steps

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rendis/stepflow/pkg/schema"
)

// Registry maps step types to executors. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.StepType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[schema.StepType]Executor)}
}

// Register adds an executor. Returns CONFLICT on a duplicate type.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	t := e.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor step type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for %q already registered", t)
	}
	r.executors[t] = e
	return nil
}

// Get returns the executor for t.
func (r *Registry) Get(t schema.StepType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no executor for step type %q", t)
	}
	return e, nil
}

// Types returns the registered step types, sorted.
func (r *Registry) Types() []schema.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.StepType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Execute runs step through its executor. A panic inside the executor is
// converted into a failed Result.
func (r *Registry) Execute(ctx context.Context, step schema.Step, runCtx map[string]any) (res Result) {
	e, err := r.Get(step.Type)
	if err != nil {
		return Result{Error: fmt.Sprintf("unknown step type %q", step.Type)}
	}
	defer func() {
		if p := recover(); p != nil {
			res = Result{Error: fmt.Sprintf("step %s panicked: %v", step.ID, p)}
		}
	}()
	return e.Execute(ctx, step, runCtx)
}
