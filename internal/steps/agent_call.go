package steps

import (
	"context"

	"github.com/rendis/stepflow/internal/dispatch"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

// AgentCallExecutor interpolates the message and hands it to a Dispatcher.
type AgentCallExecutor struct {
	dispatcher dispatch.Dispatcher
}

// NewAgentCallExecutor creates an agent_call executor. A nil dispatcher
// selects dispatch.Simulated.
func NewAgentCallExecutor(d dispatch.Dispatcher) *AgentCallExecutor {
	if d == nil {
		d = dispatch.Simulated{}
	}
	return &AgentCallExecutor{dispatcher: d}
}

func (e *AgentCallExecutor) Type() schema.StepType { return schema.StepTypeAgentCall }

func (e *AgentCallExecutor) Execute(ctx context.Context, step schema.Step, runCtx map[string]any) Result {
	cfg, err := decode[*schema.AgentCallConfig](step)
	if err != nil {
		return fail(err)
	}

	reply, err := e.dispatcher.Dispatch(ctx, dispatch.Request{
		AgentID:    cfg.AgentID,
		SessionKey: cfg.SessionKey,
		Message:    expressions.InterpolateString(cfg.Message, runCtx),
		TimeoutMs:  cfg.TimeoutMs,
	})
	if err != nil {
		return fail(err)
	}

	return succeed(map[string]any{
		"response":    reply,
		"agent_id":    cfg.AgentID,
		"session_key": cfg.SessionKey,
	})
}
