package steps

import (
	"github.com/rendis/stepflow/internal/dispatch"
	"github.com/rendis/stepflow/internal/expressions"
)

// Deps are the collaborators the built-in executors need.
type Deps struct {
	Dispatcher dispatch.Dispatcher
	Conditions *expressions.Conditions
	JQ         *expressions.GoJQEngine
	Webhook    WebhookConfig
}

// RegisterBuiltins registers one executor per step type.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	all := []Executor{
		NewAgentCallExecutor(deps.Dispatcher),
		NewConditionExecutor(deps.Conditions),
		NewTransformExecutor(deps.JQ),
		DelayExecutor{},
		NewWebhookExecutor(deps.Webhook),
		SetContextExecutor{},
	}
	for _, e := range all {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry with every built-in executor.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}
